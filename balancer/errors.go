package balancer

import "github.com/ceyewan/meshkit/xerrors"

var (
	// ErrNoHealthyEndpoint 候选池中没有健康端点
	ErrNoHealthyEndpoint = xerrors.New("balancer: no healthy endpoint")

	// ErrUnknownStrategy 未知的负载均衡策略
	ErrUnknownStrategy = xerrors.New("balancer: unknown strategy")
)
