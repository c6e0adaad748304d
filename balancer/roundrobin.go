package balancer

import (
	"sync/atomic"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// roundRobinPicker 轮询选择器
//
// 使用原子计数器实现无锁的游标推进。游标单调递增，只按池大小取模读取，
// 并发调用不会观察到重复的旧游标值。
type roundRobinPicker struct {
	cursor atomic.Uint64
}

func (p *roundRobinPicker) Pick(pool []registry.Endpoint) (registry.Endpoint, error) {
	if len(pool) == 0 {
		return registry.Endpoint{}, xerrors.Wrap(ErrNoHealthyEndpoint, "empty pool")
	}
	index := (p.cursor.Add(1) - 1) % uint64(len(pool))
	return pool[index], nil
}
