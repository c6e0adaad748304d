package breaker

import (
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// manager 熔断器实现（非导出）
type manager struct {
	cfg    *Config
	logger clog.Logger
	now    func() time.Time // 测试注入

	// 服务级熔断器管理
	breakers sync.Map // map[string]*circuitBreaker
}

// newManager 创建熔断器管理器（内部函数）
func newManager(cfg *Config, logger clog.Logger) *manager {
	return &manager{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// circuitBreaker 单个服务的熔断器实例
type circuitBreaker struct {
	serviceID string
	policy    Policy

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
}

func (m *manager) AllowRequest(serviceID string) bool {
	cb := m.breakerFor(serviceID)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		// 惰性恢复：超时后的第一次检查转入 HalfOpen 并放行
		if m.now().Sub(cb.lastFailureAt) >= cb.policy.OpenTimeout {
			cb.state = StateHalfOpen
			m.logger.Info("circuit breaker half-open",
				clog.String("service", serviceID))
			return true
		}
		return false
	default:
		return true
	}
}

func (m *manager) RecordOutcome(serviceID string, success bool) {
	cb := m.breakerFor(serviceID)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			// Closed 状态下成功不清零失败计数，见包文档
			return
		}
		cb.consecutiveFailures++
		cb.lastFailureAt = m.now()
		if cb.consecutiveFailures >= cb.policy.Threshold {
			cb.state = StateOpen
			m.logger.Warn("circuit breaker opened",
				clog.String("service", serviceID),
				clog.Int("consecutive_failures", cb.consecutiveFailures))
		}
	case StateHalfOpen:
		if success {
			cb.state = StateClosed
			cb.consecutiveFailures = 0
			m.logger.Info("circuit breaker closed",
				clog.String("service", serviceID))
		} else {
			cb.state = StateOpen
			cb.lastFailureAt = m.now()
			m.logger.Warn("circuit breaker reopened",
				clog.String("service", serviceID))
		}
	case StateOpen:
		// 放行检查与结果记录之间状态可能已翻转成 Open（并发探测），
		// 此时失败只需要刷新失败时间，成功留待下一次 HalfOpen 探测
		if !success {
			cb.lastFailureAt = m.now()
		}
	}
}

func (m *manager) State(serviceID string) State {
	cb := m.breakerFor(serviceID)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (m *manager) Reset(serviceID string) {
	cb := m.breakerFor(serviceID)

	cb.mu.Lock()
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.mu.Unlock()

	m.logger.Info("circuit breaker manually reset",
		clog.String("service", serviceID))
}

func (m *manager) Remove(serviceID string) {
	m.breakers.Delete(serviceID)
}

// breakerFor 获取或惰性创建服务的熔断器实例
func (m *manager) breakerFor(serviceID string) *circuitBreaker {
	if val, ok := m.breakers.Load(serviceID); ok {
		return val.(*circuitBreaker)
	}

	cb := &circuitBreaker{
		serviceID: serviceID,
		policy:    m.cfg.policyFor(serviceID),
		state:     StateClosed,
	}
	actual, _ := m.breakers.LoadOrStore(serviceID, cb)
	return actual.(*circuitBreaker)
}
