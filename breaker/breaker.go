// Package breaker 提供按服务粒度的熔断器，专注于路由层的故障隔离与自动恢复。
//
// breaker 是 meshkit 治理层的核心组件，它提供了：
// - 连续失败计数驱动的三态状态机（Closed / Open / HalfOpen）
// - 服务级粒度的熔断管理（按服务 ID 独立熔断）
// - 惰性恢复探测：Open 超时后的下一次放行检查转入 HalfOpen，无需定时器
// - 按服务覆盖默认策略
//
// ## 状态机
//
//	Closed   --连续失败达到阈值-->  Open
//	Open     --超时后下一次检查-->  HalfOpen
//	HalfOpen --成功-->             Closed（失败计数清零）
//	HalfOpen --失败-->             Open（刷新失败时间）
//
// 注意：Closed 状态下的成功不会递减失败计数，计数只在回到 Closed 时清零。
// 这意味着间隔出现的失败会累计，直到一次恢复探测成功为止。
//
// ## 基本使用
//
//	brk, _ := breaker.New(&breaker.Config{
//		Threshold:   5,
//		OpenTimeout: 30 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	if !brk.AllowRequest("user-service") {
//		return ErrCircuitOpen
//	}
//	err := doRequest()
//	brk.RecordOutcome("user-service", err == nil)
package breaker

import "github.com/ceyewan/meshkit/xerrors"

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常放行
	StateOpen                  // 熔断中，拒绝请求
	StateHalfOpen              // 恢复探测中
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker 熔断器核心接口
type Breaker interface {
	// AllowRequest 检查服务当前是否放行请求
	// Open 状态超时后的第一次调用会将状态转入 HalfOpen 并放行
	AllowRequest(serviceID string) bool

	// RecordOutcome 记录一次请求结果，驱动状态机转换
	RecordOutcome(serviceID string, success bool)

	// State 返回服务当前的熔断状态
	State(serviceID string) State

	// Reset 手动将服务的熔断器重置为 Closed
	Reset(serviceID string)

	// Remove 删除服务的熔断状态，服务注销时调用
	Remove(serviceID string)
}

// New 创建熔断器实例
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()

	options := applyOptions(opts...)
	return newManager(cfg, options.logger), nil
}

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrCircuitOpen 熔断器处于打开状态
	ErrCircuitOpen = xerrors.New("breaker: circuit is open")
)
