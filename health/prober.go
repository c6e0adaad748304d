// Package health 提供端点健康检查组件，周期性探活并维护服务的聚合健康状态。
//
// 每个被监视的服务由一个独立的 goroutine 按该服务的检查间隔探活，
// 服务之间互不同步。探测本身通过注入的 Prober 能力完成，
// health 组件自身不做任何网络 I/O。
//
// 探测失败只会把端点标记为不健康并记录日志，永远不会中断检查循环。
//
// ## 基本使用
//
//	checker := health.NewChecker(reg, prober, health.WithLogger(logger))
//	defer checker.Close()
//
//	checker.Watch("user-service")   // 注册时调用
//	checker.Unwatch("user-service") // 注销时调用
package health

import (
	"context"

	"github.com/ceyewan/meshkit/registry"
)

// Prober 端点探活能力接口，由嵌入方注入
//
// 生产实现对端点发起真实探测（如 HTTP GET 健康检查路径），
// 测试实现返回预设结果。返回 err 时端点视为不健康。
type Prober interface {
	Probe(ctx context.Context, endpoint registry.Endpoint) (healthy bool, err error)
}

// ProberFunc 函数式 Prober 适配器
type ProberFunc func(ctx context.Context, endpoint registry.Endpoint) (bool, error)

func (f ProberFunc) Probe(ctx context.Context, endpoint registry.Endpoint) (bool, error) {
	return f(ctx, endpoint)
}

// DeriveStatus 根据健康端点数量推导服务聚合状态
//
// 全部健康为 Healthy，部分健康为 Degraded，全不健康为 Unhealthy。
// 结果只取决于本轮探测的端点健康，不做任何防抖。
func DeriveStatus(healthyCount, total int) registry.Status {
	switch {
	case total == 0:
		return registry.StatusUnknown
	case healthyCount == total:
		return registry.StatusHealthy
	case healthyCount > 0:
		return registry.StatusDegraded
	default:
		return registry.StatusUnhealthy
	}
}
