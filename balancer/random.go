package balancer

import (
	"math/rand"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// randomPicker 均匀随机选择器，无状态
type randomPicker struct{}

func (p *randomPicker) Pick(pool []registry.Endpoint) (registry.Endpoint, error) {
	if len(pool) == 0 {
		return registry.Endpoint{}, xerrors.Wrap(ErrNoHealthyEndpoint, "empty pool")
	}
	return pool[rand.Intn(len(pool))], nil
}
