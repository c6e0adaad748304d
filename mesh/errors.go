package mesh

import (
	"github.com/ceyewan/meshkit/balancer"
	"github.com/ceyewan/meshkit/breaker"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// 下层组件的哨兵错误在此重导出，调用方只依赖 mesh 包即可区分全部结果。
var (
	// ErrServiceNotFound 服务未注册
	ErrServiceNotFound = registry.ErrServiceNotFound

	// ErrServiceAlreadyRegistered 服务已注册
	ErrServiceAlreadyRegistered = registry.ErrServiceAlreadyRegistered

	// ErrCircuitOpen 熔断器打开，请求被拒绝（不重试、不计入统计）
	ErrCircuitOpen = breaker.ErrCircuitOpen

	// ErrNoHealthyEndpoint 服务没有健康端点（不重试、不计入统计）
	ErrNoHealthyEndpoint = balancer.ErrNoHealthyEndpoint
)

var (
	// ErrMeshClosed 路由层已关闭
	ErrMeshClosed = xerrors.New("mesh: mesh is closed")

	// ErrRequestNil 请求为空
	ErrRequestNil = xerrors.New("mesh: request is nil")

	// ErrConfigInvalid 配置无效
	ErrConfigInvalid = xerrors.New("mesh: invalid config")

	// ErrInvariant 服务的治理状态损坏，该服务的请求失败但不影响其他服务
	ErrInvariant = xerrors.New("mesh: per-service state violated invariant")
)
