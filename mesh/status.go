package mesh

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/meshkit/breaker"
	"github.com/ceyewan/meshkit/registry"
)

// ServiceMetrics 单个服务的请求统计快照
//
// 统计按分发尝试计数：每次实际发出的请求尝试恰好计入一次，
// 路由拒绝（熔断、无健康端点）不计入。
type ServiceMetrics struct {
	RequestCount int64         `json:"request_count"`
	SuccessCount int64         `json:"success_count"`
	ErrorCount   int64         `json:"error_count"`
	TotalLatency time.Duration `json:"total_latency"`
}

// SuccessRate 返回成功率，无请求时为 0
func (m ServiceMetrics) SuccessRate() float64 {
	if m.RequestCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.RequestCount)
}

// AverageLatency 返回平均时延，无请求时为 0
func (m ServiceMetrics) AverageLatency() time.Duration {
	if m.RequestCount == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.RequestCount)
}

// ServiceStatus 单个服务的状态快照
type ServiceStatus struct {
	ServiceID    string              `json:"service_id"`
	Name         string              `json:"name"`
	Status       registry.Status     `json:"status"`
	BreakerState breaker.State       `json:"breaker_state"`
	Endpoints    []registry.Endpoint `json:"endpoints"`
	Dependencies []string            `json:"dependencies"`
	Metrics      ServiceMetrics      `json:"metrics"`
}

// MeshStatus 全网格的聚合状态快照
type MeshStatus struct {
	ServiceCount   int           `json:"service_count"`
	HealthyCount   int           `json:"healthy_count"`
	DegradedCount  int           `json:"degraded_count"`
	UnhealthyCount int           `json:"unhealthy_count"`
	TotalRequests  int64         `json:"total_requests"`
	SuccessRate    float64       `json:"success_rate"`
	AverageLatency time.Duration `json:"average_latency"`
}

// serviceCounters 单个服务的原子计数器
type serviceCounters struct {
	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	latencyNS atomic.Int64
}

// collector 进程内请求统计，注册时创建、注销时销毁
type collector struct {
	mu       sync.RWMutex
	counters map[string]*serviceCounters
}

func newCollector() *collector {
	return &collector{counters: make(map[string]*serviceCounters)}
}

func (c *collector) init(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counters[serviceID]; !ok {
		c.counters[serviceID] = &serviceCounters{}
	}
}

func (c *collector) remove(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, serviceID)
}

// observe 记录一次分发尝试的结果
// 服务已注销时静默丢弃，注销与在途请求的竞争不是错误
func (c *collector) observe(serviceID string, success bool, latency time.Duration) {
	c.mu.RLock()
	counters, ok := c.counters[serviceID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	counters.requests.Add(1)
	if success {
		counters.successes.Add(1)
	} else {
		counters.failures.Add(1)
	}
	counters.latencyNS.Add(latency.Nanoseconds())
}

func (c *collector) snapshot(serviceID string) ServiceMetrics {
	c.mu.RLock()
	counters, ok := c.counters[serviceID]
	c.mu.RUnlock()
	if !ok {
		return ServiceMetrics{}
	}

	return ServiceMetrics{
		RequestCount: counters.requests.Load(),
		SuccessCount: counters.successes.Load(),
		ErrorCount:   counters.failures.Load(),
		TotalLatency: time.Duration(counters.latencyNS.Load()),
	}
}

// totals 返回全部服务的累计请求数、成功数与总时延
func (c *collector) totals() (requests, successes int64, latency time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var latencyNS int64
	for _, counters := range c.counters {
		requests += counters.requests.Load()
		successes += counters.successes.Load()
		latencyNS += counters.latencyNS.Load()
	}
	return requests, successes, time.Duration(latencyNS)
}
