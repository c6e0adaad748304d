package balancer

import (
	"sync"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// weightedRoundRobinPicker 加权轮询选择器
//
// 游标是累计权重轴上的位置：按池顺序累加权重，游标落在哪个槽位就选哪个
// 端点，随后游标加 1 并在总权重处回绕。权重为 2 的端点占据两个槽位，
// 因此被选中的频率是权重 1 端点的两倍。
type weightedRoundRobinPicker struct {
	mu     sync.Mutex
	cursor int
}

func (p *weightedRoundRobinPicker) Pick(pool []registry.Endpoint) (registry.Endpoint, error) {
	if len(pool) == 0 {
		return registry.Endpoint{}, xerrors.Wrap(ErrNoHealthyEndpoint, "empty pool")
	}

	total := 0
	for _, ep := range pool {
		weight := ep.Weight
		if weight < 1 {
			weight = 1
		}
		total += weight
	}

	p.mu.Lock()
	position := p.cursor % total
	p.cursor = (p.cursor + 1) % total
	p.mu.Unlock()

	accumulated := 0
	for _, ep := range pool {
		weight := ep.Weight
		if weight < 1 {
			weight = 1
		}
		accumulated += weight
		if position < accumulated {
			return ep, nil
		}
	}
	// position < total 恒成立，走到这里说明上面的累加有误
	return pool[len(pool)-1], nil
}
