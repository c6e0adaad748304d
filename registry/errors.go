package registry

import "github.com/ceyewan/meshkit/xerrors"

var (
	// ErrServiceNotFound 服务未注册
	ErrServiceNotFound = xerrors.New("registry: service not found")

	// ErrServiceAlreadyRegistered 服务已注册
	ErrServiceAlreadyRegistered = xerrors.New("registry: service already registered")

	// ErrInvalidService 无效的服务描述
	ErrInvalidService = xerrors.New("registry: invalid service info")

	// ErrEndpointIndex 端点索引越界
	ErrEndpointIndex = xerrors.New("registry: endpoint index out of range")
)
