// Package mesh 提供客户端侧的服务网格路由层，是 meshkit 对业务方的统一门面。
//
// mesh 把 registry、balancer、breaker、health 四个治理组件组装为一个请求
// 执行器：注册服务后，调用方只需 SendRequest，路由层负责熔断门禁、健康端点
// 筛选、负载均衡选择、请求分发与指标记录。
//
// ## 请求路径
//
//	SendRequest
//	  1. 熔断门禁：AllowRequest 为 false 时立即返回 ErrCircuitOpen
//	  2. 健康端点池：池为空时返回 ErrNoHealthyEndpoint
//	  3. 负载均衡选择
//	  4. Transport 分发，受超时约束
//	  5. 记录结果：每次尝试恰好一次 RecordOutcome 与指标更新
//
// 分发失败（传输错误、超时、5xx）时按 MaxRetries 重试，每次重试从第 1 步
// 重新进入，熔断打开会立即终止重试。路由拒绝（ErrCircuitOpen、
// ErrNoHealthyEndpoint）不重试、不计入服务请求统计。
//
// ## 基本使用
//
//	m, err := mesh.New(mesh.DefaultConfig(), mesh.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	_ = m.RegisterService(&registry.ServiceInfo{
//		ID: "user-service",
//		Endpoints: []registry.Endpoint{
//			{Host: "10.0.0.1", Port: 8080, Weight: 1},
//		},
//	})
//
//	resp, err := m.SendRequest(ctx, "user-service", &transport.Request{
//		Method: http.MethodGet,
//		Path:   "/api/users",
//	})
package mesh

import (
	"context"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/transport"
)

// Mesh 路由层核心接口
type Mesh interface {
	// RegisterService 注册服务并原子地初始化其全部治理状态
	// （熔断器、负载均衡游标、请求统计、健康检查任务）
	RegisterService(info *registry.ServiceInfo) error

	// UnregisterService 注销服务并原子地销毁其全部治理状态
	// 服务不存在时返回 ErrServiceNotFound
	UnregisterService(serviceID string) error

	// SendRequest 向服务发起一次逻辑调用
	//
	// 调用方会看到四种可区分的结果之一：成功响应、ErrCircuitOpen、
	// ErrNoHealthyEndpoint、重试耗尽后的传输错误。5xx 响应计为失败结果
	// 并参与重试，重试耗尽后原样返回给调用方。
	SendRequest(ctx context.Context, serviceID string, req *transport.Request) (*transport.Response, error)

	// GetServiceStatus 返回单个服务的状态快照
	// 服务不存在时返回 ErrServiceNotFound
	GetServiceStatus(serviceID string) (*ServiceStatus, error)

	// ListServices 返回全部已注册服务的状态快照
	ListServices() []*ServiceStatus

	// GetMeshStatus 返回全网格的聚合状态快照
	GetMeshStatus() *MeshStatus

	// Close 关闭路由层：停止健康检查任务，拒绝新的注册与请求，
	// 等待在途请求完成。重复调用是幂等的。
	Close() error
}

// New 创建路由层实例，cfg 为 nil 时使用 DefaultConfig
func New(cfg *Config, opts ...Option) (Mesh, error) {
	return newMesh(cfg, opts...)
}
