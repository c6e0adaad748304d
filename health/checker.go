package health

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// ErrCheckerClosed 检查器已关闭
var ErrCheckerClosed = xerrors.New("health: checker is closed")

// Checker 周期性健康检查器
//
// 每个被监视的服务持有一个后台循环，按服务自己的检查间隔探活全部端点，
// 并把结果写回 registry。
type Checker struct {
	registry registry.Registry
	prober   Prober
	logger   clog.Logger

	defaultInterval time.Duration
	probeTimeout    time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewChecker 创建健康检查器
func NewChecker(reg registry.Registry, prober Prober, opts ...Option) *Checker {
	options := applyOptions(opts...)
	return &Checker{
		registry:        reg,
		prober:          prober,
		logger:          options.logger,
		defaultInterval: options.defaultInterval,
		probeTimeout:    options.probeTimeout,
		cancels:         make(map[string]context.CancelFunc),
	}
}

// Watch 开始监视服务，立即执行一轮检查，之后按服务的检查间隔循环
//
// 重复 Watch 同一服务是幂等的。服务在 registry 中不存在时返回
// registry.ErrServiceNotFound。
func (c *Checker) Watch(serviceID string) error {
	info, ok := c.registry.Get(serviceID)
	if !ok {
		return xerrors.Wrapf(registry.ErrServiceNotFound, "service %q", serviceID)
	}

	interval := info.HealthCheckInterval
	if interval <= 0 {
		interval = c.defaultInterval
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCheckerClosed
	}
	if _, ok := c.cancels[serviceID]; ok {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancels[serviceID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, serviceID, interval)
	return nil
}

// Unwatch 停止监视服务，服务注销时调用
func (c *Checker) Unwatch(serviceID string) {
	c.mu.Lock()
	cancel, ok := c.cancels[serviceID]
	if ok {
		delete(c.cancels, serviceID)
	}
	c.mu.Unlock()

	if ok {
		cancel()
	}
}

// Close 停止全部检查循环并等待退出
func (c *Checker) Close() {
	c.mu.Lock()
	c.closed = true
	cancels := c.cancels
	c.cancels = make(map[string]context.CancelFunc)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.wg.Wait()
}

// CheckNow 同步执行一轮检查，返回本轮推导出的聚合状态
//
// 后台循环也使用该方法；单独调用可用于注册后立即拉起健康状态。
func (c *Checker) CheckNow(ctx context.Context, serviceID string) (registry.Status, error) {
	info, ok := c.registry.Get(serviceID)
	if !ok {
		return registry.StatusUnknown, xerrors.Wrapf(registry.ErrServiceNotFound, "service %q", serviceID)
	}

	healthyCount := 0
	for i, endpoint := range info.Endpoints {
		healthy := c.probe(ctx, endpoint)
		if healthy {
			healthyCount++
		}
		// 无论结果如何都刷新检查时间
		if err := c.registry.SetEndpointHealth(serviceID, i, healthy, time.Now()); err != nil {
			// 服务可能在检查过程中被注销，放弃本轮
			return registry.StatusUnknown, err
		}
	}

	status := DeriveStatus(healthyCount, len(info.Endpoints))
	if err := c.registry.SetStatus(serviceID, status); err != nil {
		return registry.StatusUnknown, err
	}

	c.logger.Debug("health check pass complete",
		clog.String("service", serviceID),
		clog.String("status", string(status)),
		clog.Int("healthy", healthyCount),
		clog.Int("total", len(info.Endpoints)))
	return status, nil
}

// run 单个服务的检查循环
func (c *Checker) run(ctx context.Context, serviceID string, interval time.Duration) {
	defer c.wg.Done()

	// 启动即检查一轮，避免新注册的服务在首个间隔内无健康信息
	if _, err := c.CheckNow(ctx, serviceID); err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.CheckNow(ctx, serviceID); err != nil {
				// 服务已注销，循环退出
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// probe 探测单个端点，探测错误视为不健康并记录日志
func (c *Checker) probe(ctx context.Context, endpoint registry.Endpoint) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	healthy, err := c.prober.Probe(probeCtx, endpoint)
	if err != nil {
		c.logger.Warn("endpoint probe failed",
			clog.String("service", endpoint.ServiceID),
			clog.String("endpoint", endpoint.Key()),
			clog.Error(err))
		return false
	}
	return healthy
}
