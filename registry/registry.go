// Package registry 提供进程内的服务目录，维护已注册服务及其端点的健康状态。
//
// registry 是 meshkit 路由层的数据中枢：注册中心只负责存储与查询，
// 端点健康由 health 组件写入，路由决策由 mesh 组件读取。
//
// ## 基本使用
//
//	reg := registry.New(registry.WithLogger(logger))
//
//	err := reg.Register(&registry.ServiceInfo{
//		ID:   "user-service",
//		Name: "User Service",
//		Endpoints: []registry.Endpoint{
//			{Host: "10.0.0.1", Port: 8080, Weight: 1},
//			{Host: "10.0.0.2", Port: 8080, Weight: 2},
//		},
//	})
//
//	pool, _ := reg.HealthyEndpoints("user-service")
//
// ## 并发模型
//
// 目录结构变更（Register/Unregister）由全局写锁串行化；
// 单个服务的健康写入只持有该服务自己的锁，互不相关的服务不会互相阻塞。
package registry

import (
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/xerrors"
)

// Registry 服务目录接口
type Registry interface {
	// Register 注册服务，服务 ID 已存在时返回 ErrServiceAlreadyRegistered
	Register(info *ServiceInfo) error

	// Unregister 注销服务，服务不存在时返回 ErrServiceNotFound
	Unregister(serviceID string) error

	// Get 返回服务信息快照
	Get(serviceID string) (*ServiceInfo, bool)

	// List 返回全部服务信息快照
	List() []*ServiceInfo

	// HealthyEndpoints 返回当前标记为健康的端点
	HealthyEndpoints(serviceID string) ([]Endpoint, error)

	// SetEndpointHealth 更新单个端点的健康状态，只供健康检查器调用
	SetEndpointHealth(serviceID string, index int, healthy bool, at time.Time) error

	// SetStatus 更新服务的聚合状态，只供健康检查器调用
	SetStatus(serviceID string, status Status) error
}

// New 创建内存服务目录
func New(opts ...Option) Registry {
	options := applyOptions(opts...)
	return &memoryRegistry{
		services: make(map[string]*serviceEntry),
		logger:   options.logger,
	}
}

// serviceEntry 单个服务的存储单元，持有自己的锁
type serviceEntry struct {
	mu   sync.RWMutex
	info *ServiceInfo
}

// memoryRegistry Registry 的内存实现（非导出）
type memoryRegistry struct {
	mu       sync.RWMutex
	services map[string]*serviceEntry
	logger   clog.Logger
}

func (r *memoryRegistry) Register(info *ServiceInfo) error {
	if err := validate(info); err != nil {
		return err
	}

	// 注册时深拷贝，调用方后续修改入参不影响目录
	stored := info.clone()
	stored.Status = StatusUnknown
	for i := range stored.Endpoints {
		stored.Endpoints[i].ServiceID = stored.ID
		if stored.Endpoints[i].Weight < 1 {
			stored.Endpoints[i].Weight = 1
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[stored.ID]; ok {
		return xerrors.Wrapf(ErrServiceAlreadyRegistered, "service %q", stored.ID)
	}
	r.services[stored.ID] = &serviceEntry{info: stored}

	r.logger.Info("service registered",
		clog.String("service", stored.ID),
		clog.Int("endpoints", len(stored.Endpoints)))
	return nil
}

func (r *memoryRegistry) Unregister(serviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[serviceID]; !ok {
		return xerrors.Wrapf(ErrServiceNotFound, "service %q", serviceID)
	}
	delete(r.services, serviceID)

	r.logger.Info("service unregistered", clog.String("service", serviceID))
	return nil
}

func (r *memoryRegistry) Get(serviceID string) (*ServiceInfo, bool) {
	entry, ok := r.entry(serviceID)
	if !ok {
		return nil, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.info.clone(), true
}

func (r *memoryRegistry) List() []*ServiceInfo {
	r.mu.RLock()
	entries := make([]*serviceEntry, 0, len(r.services))
	for _, entry := range r.services {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	infos := make([]*ServiceInfo, 0, len(entries))
	for _, entry := range entries {
		entry.mu.RLock()
		infos = append(infos, entry.info.clone())
		entry.mu.RUnlock()
	}
	return infos
}

func (r *memoryRegistry) HealthyEndpoints(serviceID string) ([]Endpoint, error) {
	entry, ok := r.entry(serviceID)
	if !ok {
		return nil, xerrors.Wrapf(ErrServiceNotFound, "service %q", serviceID)
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	var healthy []Endpoint
	for _, ep := range entry.info.Endpoints {
		if ep.Healthy {
			healthy = append(healthy, ep)
		}
	}
	return healthy, nil
}

func (r *memoryRegistry) SetEndpointHealth(serviceID string, index int, healthy bool, at time.Time) error {
	entry, ok := r.entry(serviceID)
	if !ok {
		return xerrors.Wrapf(ErrServiceNotFound, "service %q", serviceID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if index < 0 || index >= len(entry.info.Endpoints) {
		return xerrors.Wrapf(ErrEndpointIndex, "service %q index %d", serviceID, index)
	}
	ep := &entry.info.Endpoints[index]
	ep.Healthy = healthy
	ep.LastHealthCheckAt = at
	return nil
}

func (r *memoryRegistry) SetStatus(serviceID string, status Status) error {
	entry, ok := r.entry(serviceID)
	if !ok {
		return xerrors.Wrapf(ErrServiceNotFound, "service %q", serviceID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.info.Status = status
	return nil
}

// entry 在全局读锁下取出服务存储单元（内部使用）
func (r *memoryRegistry) entry(serviceID string) (*serviceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.services[serviceID]
	return entry, ok
}

// validate 校验服务描述的基本约束
func validate(info *ServiceInfo) error {
	if info == nil {
		return xerrors.Wrap(ErrInvalidService, "nil service info")
	}
	if info.ID == "" {
		return xerrors.Wrap(ErrInvalidService, "empty service id")
	}
	if len(info.Endpoints) == 0 {
		return xerrors.Wrapf(ErrInvalidService, "service %q has no endpoints", info.ID)
	}
	for i, ep := range info.Endpoints {
		if ep.Host == "" || ep.Port <= 0 {
			return xerrors.Wrapf(ErrInvalidService, "service %q endpoint %d has invalid address", info.ID, i)
		}
	}
	return nil
}
