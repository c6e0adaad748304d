// Package balancer 提供端点选择策略，是 meshkit 路由层的负载均衡组件。
//
// 支持五种策略：
//   - round_robin:          轮询，忽略权重，长期公平
//   - weighted_round_robin: 按权重比例轮询，权重高的端点被选中更频繁
//   - least_connections:    选择在途请求数最少的端点
//   - least_response_time:  选择平均响应时间最短的端点
//   - random:               均匀随机
//
// 每个服务持有独立的选择状态（轮询游标、负载信号），由 Manager 统一管理，
// 服务注销时随之清理。
//
// ## 基本使用
//
//	mgr, _ := balancer.NewManager(balancer.RoundRobin, balancer.WithLogger(logger))
//	endpoint, err := mgr.Select("user-service", healthyEndpoints)
//
// least_connections / least_response_time 依赖请求执行方回报负载信号：
//
//	mgr.ReportStart("user-service", endpoint)
//	// ... 发起请求 ...
//	mgr.ReportEnd("user-service", endpoint, latency)
package balancer

import (
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// Strategy 负载均衡策略
type Strategy string

const (
	RoundRobin         Strategy = "round_robin"
	WeightedRoundRobin Strategy = "weighted_round_robin"
	LeastConnections   Strategy = "least_connections"
	LeastResponseTime  Strategy = "least_response_time"
	Random             Strategy = "random"
)

// ParseStrategy 将配置字符串解析为 Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case RoundRobin, WeightedRoundRobin, LeastConnections, LeastResponseTime, Random:
		return Strategy(s), nil
	case "":
		return RoundRobin, nil
	default:
		return "", xerrors.Wrapf(ErrUnknownStrategy, "strategy %q", s)
	}
}

// picker 单个服务的端点选择器，实现必须是 goroutine 安全的
type picker interface {
	// Pick 从候选池中选出一个端点，池为空时返回 ErrNoHealthyEndpoint
	Pick(pool []registry.Endpoint) (registry.Endpoint, error)
}

// loadReporter 需要负载信号的选择器实现此接口
type loadReporter interface {
	ReportStart(ep registry.Endpoint)
	ReportEnd(ep registry.Endpoint, latency time.Duration)
}

// Manager 按服务管理端点选择状态
type Manager struct {
	strategy Strategy
	logger   clog.Logger

	mu      sync.Mutex
	pickers map[string]picker
}

// NewManager 创建负载均衡管理器
func NewManager(strategy Strategy, opts ...Option) (*Manager, error) {
	parsed, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	options := applyOptions(opts...)
	return &Manager{
		strategy: parsed,
		logger:   options.logger,
		pickers:  make(map[string]picker),
	}, nil
}

// Strategy 返回管理器使用的策略
func (m *Manager) Strategy() Strategy {
	return m.strategy
}

// Select 为服务从候选池中选出一个端点
//
// 候选池中未标记健康的端点会被剔除，选择器永远不会返回不健康端点。
// 池为空（或全部不健康）时返回 ErrNoHealthyEndpoint。
func (m *Manager) Select(serviceID string, pool []registry.Endpoint) (registry.Endpoint, error) {
	healthy := pool[:0:0]
	for _, ep := range pool {
		if ep.Healthy {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		return registry.Endpoint{}, xerrors.Wrapf(ErrNoHealthyEndpoint, "service %q", serviceID)
	}

	return m.pickerFor(serviceID).Pick(healthy)
}

// ReportStart 记录端点开始处理一个请求（负载信号）
func (m *Manager) ReportStart(serviceID string, ep registry.Endpoint) {
	if reporter, ok := m.pickerFor(serviceID).(loadReporter); ok {
		reporter.ReportStart(ep)
	}
}

// ReportEnd 记录端点完成一个请求及其耗时（负载信号）
func (m *Manager) ReportEnd(serviceID string, ep registry.Endpoint, latency time.Duration) {
	if reporter, ok := m.pickerFor(serviceID).(loadReporter); ok {
		reporter.ReportEnd(ep, latency)
	}
}

// Remove 清理服务的选择状态，服务注销时调用
func (m *Manager) Remove(serviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pickers, serviceID)
}

// pickerFor 获取或惰性创建服务的选择器（内部使用）
func (m *Manager) pickerFor(serviceID string) picker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pickers[serviceID]; ok {
		return p
	}
	p := m.newPicker()
	m.pickers[serviceID] = p
	return p
}

func (m *Manager) newPicker() picker {
	switch m.strategy {
	case WeightedRoundRobin:
		return &weightedRoundRobinPicker{}
	case LeastConnections:
		return newLeastLoadPicker(byConnections)
	case LeastResponseTime:
		return newLeastLoadPicker(byResponseTime)
	case Random:
		return &randomPicker{}
	default:
		return &roundRobinPicker{}
	}
}
