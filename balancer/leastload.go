package balancer

import (
	"sync"
	"time"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// loadSignal 选择器使用的负载信号维度
type loadSignal int

const (
	byConnections  loadSignal = iota // 在途请求数
	byResponseTime                   // 平均响应时间
)

// endpointLoad 单个端点的负载统计
type endpointLoad struct {
	active     int           // 在途请求数
	avgLatency time.Duration // 指数滑动平均响应时间
}

// leastLoadPicker 最小负载选择器，服务于 least_connections 和
// least_response_time 两种策略
//
// 负载信号由请求执行方通过 ReportStart/ReportEnd 回报。
// 没有任何统计的端点负载视为 0，因此新端点会被优先探索。
// 并列时取池中第一个最小值，保证测试可确定。
type leastLoadPicker struct {
	signal loadSignal

	mu    sync.Mutex
	loads map[string]*endpointLoad
}

func newLeastLoadPicker(signal loadSignal) *leastLoadPicker {
	return &leastLoadPicker{
		signal: signal,
		loads:  make(map[string]*endpointLoad),
	}
}

func (p *leastLoadPicker) Pick(pool []registry.Endpoint) (registry.Endpoint, error) {
	if len(pool) == 0 {
		return registry.Endpoint{}, xerrors.Wrap(ErrNoHealthyEndpoint, "empty pool")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	best := 0
	bestScore := p.score(pool[0])
	for i := 1; i < len(pool); i++ {
		if score := p.score(pool[i]); score < bestScore {
			best = i
			bestScore = score
		}
	}
	return pool[best], nil
}

// score 计算端点的负载分值，越小越优先（调用方持锁）
func (p *leastLoadPicker) score(ep registry.Endpoint) float64 {
	load, ok := p.loads[ep.Key()]
	if !ok {
		return 0
	}
	if p.signal == byConnections {
		return float64(load.active)
	}
	return float64(load.avgLatency)
}

func (p *leastLoadPicker) ReportStart(ep registry.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadFor(ep).active++
}

func (p *leastLoadPicker) ReportEnd(ep registry.Endpoint, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	load := p.loadFor(ep)
	if load.active > 0 {
		load.active--
	}
	if load.avgLatency == 0 {
		load.avgLatency = latency
	} else {
		// EWMA，新样本权重 0.3
		load.avgLatency = time.Duration(float64(load.avgLatency)*0.7 + float64(latency)*0.3)
	}
}

// loadFor 获取或创建端点负载统计（调用方持锁）
func (p *leastLoadPicker) loadFor(ep registry.Endpoint) *endpointLoad {
	key := ep.Key()
	load, ok := p.loads[key]
	if !ok {
		load = &endpointLoad{}
		p.loads[key] = load
	}
	return load
}
