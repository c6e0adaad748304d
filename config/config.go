package config

import (
	"context"
	"fmt"
)

// New 创建配置加载器，但不加载配置
//
// 需要显式调用 Load 完成加载。大多数场景下直接使用 MustLoad。
func New(opts ...Option) Loader {
	return newLoader(opts...)
}

// MustLoad 创建并加载配置，出错时 panic
//
// 仅用于初始化阶段：
//
//	loader := config.MustLoad(config.WithConfigName("meshkit"))
func MustLoad(opts ...Option) Loader {
	l := newLoader(opts...)
	if err := l.Load(context.Background()); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return l
}
