package mesh

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/meshkit/balancer"
	"github.com/ceyewan/meshkit/breaker"
	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/health"
	"github.com/ceyewan/meshkit/metrics"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/transport"
	"github.com/ceyewan/meshkit/xerrors"
)

type meshImpl struct {
	cfg    *Config
	logger clog.Logger

	registry  registry.Registry
	balancer  *balancer.Manager
	breaker   breaker.Breaker
	checker   *health.Checker // 健康检查关闭时为 nil
	transport transport.Transport
	collector *collector

	requestsTotal    metrics.Counter
	requestLatency   metrics.Histogram
	healthyEndpoints metrics.Gauge
	breakerState     metrics.Gauge

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newMesh(cfg *Config, opts ...Option) (*meshImpl, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()

	options := applyOptions(opts...)
	logger := options.logger

	strategy, err := balancer.ParseStrategy(cfg.LoadBalancingStrategy)
	if err != nil {
		return nil, xerrors.Wrapf(ErrConfigInvalid, "%v", err)
	}

	lb, err := balancer.NewManager(strategy, balancer.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	brk, err := breaker.New(&breaker.Config{
		Threshold:   cfg.BreakerThreshold,
		OpenTimeout: cfg.BreakerOpenTimeout,
		Services:    cfg.BreakerOverrides,
	}, breaker.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.WithLogger(logger))

	var checker *health.Checker
	if cfg.EnableHealthChecks {
		checker = health.NewChecker(reg, options.prober,
			health.WithLogger(logger),
			health.WithDefaultInterval(cfg.HealthCheckInterval))
	}

	meter := options.meter
	if !cfg.EnableMetrics {
		meter = metrics.Discard()
	}

	m := &meshImpl{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		balancer:  lb,
		breaker:   brk,
		checker:   checker,
		transport: options.transport,
		collector: newCollector(),
	}

	if m.requestsTotal, err = meter.Counter("mesh_requests_total",
		"路由请求总数", metrics.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.requestLatency, err = meter.Histogram("mesh_request_duration_seconds",
		"路由请求耗时", metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.healthyEndpoints, err = meter.Gauge("mesh_healthy_endpoints",
		"服务当前健康端点数", metrics.WithUnit("1")); err != nil {
		return nil, err
	}
	if m.breakerState, err = meter.Gauge("mesh_breaker_state",
		"服务熔断器状态（0=closed 1=open 2=half_open）"); err != nil {
		return nil, err
	}

	logger.Info("mesh initialized",
		clog.String("strategy", string(strategy)),
		clog.Bool("health_checks", cfg.EnableHealthChecks),
		clog.Bool("circuit_breaker", cfg.EnableCircuitBreaker),
		clog.Bool("load_balancing", cfg.EnableLoadBalancing))
	return m, nil
}

func (m *meshImpl) RegisterService(info *registry.ServiceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMeshClosed
	}

	if err := m.registry.Register(info); err != nil {
		return err
	}
	m.collector.init(info.ID)

	if m.checker != nil {
		if err := m.checker.Watch(info.ID); err != nil {
			// 注册必须整体成功，检查任务启动失败时回滚已建状态
			_ = m.registry.Unregister(info.ID)
			m.collector.remove(info.ID)
			return err
		}
		return nil
	}

	// 健康检查关闭时端点在注册时即视为可路由
	now := time.Now()
	for i := range info.Endpoints {
		if err := m.registry.SetEndpointHealth(info.ID, i, true, now); err != nil {
			return xerrors.Wrapf(ErrInvariant, "service %q: %v", info.ID, err)
		}
	}
	return m.registry.SetStatus(info.ID, registry.StatusHealthy)
}

func (m *meshImpl) UnregisterService(serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Unregister(serviceID); err != nil {
		return err
	}

	// 注销是原子的：服务的全部治理状态一并销毁
	if m.checker != nil {
		m.checker.Unwatch(serviceID)
	}
	m.balancer.Remove(serviceID)
	m.breaker.Remove(serviceID)
	m.collector.remove(serviceID)
	return nil
}

func (m *meshImpl) SendRequest(ctx context.Context, serviceID string, req *transport.Request) (*transport.Response, error) {
	if req == nil {
		return nil, ErrRequestNil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMeshClosed
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	info, ok := m.registry.Get(serviceID)
	if !ok {
		return nil, xerrors.Wrapf(ErrServiceNotFound, "service %q", serviceID)
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = info.RequestTimeout
	}
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}

	retries := info.MaxRetries
	if retries <= 0 {
		retries = m.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := m.attempt(ctx, serviceID, req, timeout)
		if err == nil {
			if resp.StatusCode < http.StatusInternalServerError || attempt == retries {
				return resp, nil
			}
			// 5xx 计为失败结果并重试，重试耗尽后响应原样返回
			lastErr = nil
			continue
		}

		// 路由拒绝不重试：熔断打开立即终止，无健康端点重试也不会改善
		if xerrors.Is(err, ErrCircuitOpen) ||
			xerrors.Is(err, ErrNoHealthyEndpoint) ||
			xerrors.Is(err, ErrServiceNotFound) ||
			xerrors.Is(err, ErrInvariant) {
			return nil, err
		}
		lastErr = err

		if attempt < retries {
			m.logger.DebugContext(ctx, "retrying request",
				clog.String("service", serviceID),
				clog.String("request", req.ID),
				clog.Int("attempt", attempt+1))
		}
	}
	return nil, lastErr
}

// attempt 执行一次完整的路由尝试：门禁、选端、分发、记录
// 实际发出的请求恰好记录一次结果，路由拒绝不记录
func (m *meshImpl) attempt(ctx context.Context, serviceID string, req *transport.Request, timeout time.Duration) (*transport.Response, error) {
	if m.cfg.EnableCircuitBreaker && !m.breaker.AllowRequest(serviceID) {
		return nil, xerrors.Wrapf(ErrCircuitOpen, "service %q", serviceID)
	}

	pool, err := m.registry.HealthyEndpoints(serviceID)
	if err != nil {
		return nil, err
	}
	m.healthyEndpoints.Set(ctx, float64(len(pool)), metrics.L(metrics.LabelService, serviceID))
	if len(pool) == 0 {
		return nil, xerrors.Wrapf(ErrNoHealthyEndpoint, "service %q", serviceID)
	}

	var ep registry.Endpoint
	if m.cfg.EnableLoadBalancing {
		ep, err = m.balancer.Select(serviceID, pool)
		if err != nil {
			return nil, err
		}
	} else {
		ep = pool[0]
	}
	if !ep.Healthy {
		m.logger.ErrorContext(ctx, "selected endpoint not healthy",
			clog.String("service", serviceID),
			clog.String("endpoint", ep.Key()))
		return nil, xerrors.Wrapf(ErrInvariant, "service %q selected unhealthy endpoint %s", serviceID, ep.Key())
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.balancer.ReportStart(serviceID, ep)
	start := time.Now()
	resp, err := m.transport.Do(callCtx, ep, req)
	latency := time.Since(start)
	m.balancer.ReportEnd(serviceID, ep, latency)

	success := err == nil && resp.StatusCode < http.StatusInternalServerError
	m.recordOutcome(ctx, serviceID, success, latency)

	if err != nil {
		m.logger.WarnContext(ctx, "request attempt failed",
			clog.String("service", serviceID),
			clog.String("endpoint", ep.Key()),
			clog.String("request", req.ID),
			clog.Error(err))
		return nil, err
	}

	resp.Latency = latency
	return resp, nil
}

func (m *meshImpl) recordOutcome(ctx context.Context, serviceID string, success bool, latency time.Duration) {
	if m.cfg.EnableCircuitBreaker {
		m.breaker.RecordOutcome(serviceID, success)
		m.breakerState.Set(ctx, float64(m.breaker.State(serviceID)),
			metrics.L(metrics.LabelService, serviceID))
	}
	m.collector.observe(serviceID, success, latency)

	outcome := metrics.OutcomeSuccess
	if !success {
		outcome = metrics.OutcomeError
	}
	m.requestsTotal.Inc(ctx,
		metrics.L(metrics.LabelService, serviceID),
		metrics.L(metrics.LabelOutcome, outcome))
	m.requestLatency.Record(ctx, latency.Seconds(),
		metrics.L(metrics.LabelService, serviceID))
}

func (m *meshImpl) GetServiceStatus(serviceID string) (*ServiceStatus, error) {
	info, ok := m.registry.Get(serviceID)
	if !ok {
		return nil, xerrors.Wrapf(ErrServiceNotFound, "service %q", serviceID)
	}

	return &ServiceStatus{
		ServiceID:    info.ID,
		Name:         info.Name,
		Status:       info.Status,
		BreakerState: m.breaker.State(serviceID),
		Endpoints:    info.Endpoints,
		Dependencies: info.Dependencies,
		Metrics:      m.collector.snapshot(serviceID),
	}, nil
}

func (m *meshImpl) ListServices() []*ServiceStatus {
	infos := m.registry.List()
	statuses := make([]*ServiceStatus, 0, len(infos))
	for _, info := range infos {
		statuses = append(statuses, &ServiceStatus{
			ServiceID:    info.ID,
			Name:         info.Name,
			Status:       info.Status,
			BreakerState: m.breaker.State(info.ID),
			Endpoints:    info.Endpoints,
			Dependencies: info.Dependencies,
			Metrics:      m.collector.snapshot(info.ID),
		})
	}
	return statuses
}

func (m *meshImpl) GetMeshStatus() *MeshStatus {
	status := &MeshStatus{}
	for _, info := range m.registry.List() {
		status.ServiceCount++
		switch info.Status {
		case registry.StatusHealthy:
			status.HealthyCount++
		case registry.StatusDegraded:
			status.DegradedCount++
		case registry.StatusUnhealthy:
			status.UnhealthyCount++
		}
	}

	requests, successes, latency := m.collector.totals()
	status.TotalRequests = requests
	if requests > 0 {
		status.SuccessRate = float64(successes) / float64(requests)
		status.AverageLatency = latency / time.Duration(requests)
	}
	return status
}

func (m *meshImpl) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.checker != nil {
		m.checker.Close()
	}
	m.inflight.Wait()

	m.logger.Info("mesh closed")
	return nil
}
