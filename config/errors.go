package config

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrNotLoaded 配置尚未加载
	ErrNotLoaded = xerrors.New("config: not loaded, call Load first")

	// ErrKeyNotFound 配置键不存在
	ErrKeyNotFound = xerrors.New("config: key not found")
)
