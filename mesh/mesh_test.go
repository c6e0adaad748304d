package mesh

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshkit/balancer"
	"github.com/ceyewan/meshkit/health"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/transport"
	"github.com/ceyewan/meshkit/xerrors"
)

// stubTransport 确定性的请求分发桩，按端点 Key 脚本化行为
type stubTransport struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool // 传输层失败的端点
	code  map[string]int  // 端点返回的状态码，默认 200
	delay time.Duration
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		calls: make(map[string]int),
		fail:  make(map[string]bool),
		code:  make(map[string]int),
	}
}

func (s *stubTransport) Do(ctx context.Context, ep registry.Endpoint, req *transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	s.calls[ep.Key()]++
	fail := s.fail[ep.Key()]
	code := s.code[ep.Key()]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, xerrors.Wrapf(transport.ErrTimeout, "endpoint %s", ep.Key())
		case <-time.After(delay):
		}
	}
	if fail {
		return nil, xerrors.Wrapf(transport.ErrTransport, "endpoint %s", ep.Key())
	}
	if code == 0 {
		code = http.StatusOK
	}
	return &transport.Response{StatusCode: code, Body: []byte("ok")}, nil
}

func (s *stubTransport) callCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *stubTransport) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// testConfig 返回确定性的测试配置：不起健康检查任务，注册即可路由
func testConfig() *Config {
	return &Config{
		LoadBalancingStrategy: string(balancer.RoundRobin),
		BreakerThreshold:      5,
		BreakerOpenTimeout:    30 * time.Second,
		RequestTimeout:        time.Second,
		MaxRetries:            0,
		EnableCircuitBreaker:  true,
		EnableLoadBalancing:   true,
	}
}

func testService(id string, hosts ...string) *registry.ServiceInfo {
	info := &registry.ServiceInfo{ID: id, Name: id}
	for _, host := range hosts {
		info.Endpoints = append(info.Endpoints, registry.Endpoint{
			Host: host, Port: 8080, Weight: 1,
		})
	}
	return info
}

func newTestMesh(t *testing.T, cfg *Config, tp transport.Transport) Mesh {
	t.Helper()
	m, err := New(cfg, WithTransport(tp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNew(t *testing.T) {
	t.Run("nil 配置使用默认值", func(t *testing.T) {
		m, err := New(nil, WithTransport(newStubTransport()))
		require.NoError(t, err)
		require.NoError(t, m.Close())
	})

	t.Run("未知策略报错", func(t *testing.T) {
		cfg := testConfig()
		cfg.LoadBalancingStrategy = "fastest_first"
		_, err := New(cfg, WithTransport(newStubTransport()))
		assert.ErrorIs(t, err, ErrConfigInvalid)
	})
}

func TestSendRequest(t *testing.T) {
	t.Run("成功请求在健康端点间轮询", func(t *testing.T) {
		stub := newStubTransport()
		m := newTestMesh(t, testConfig(), stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1", "10.0.0.2")))

		for i := 0; i < 4; i++ {
			resp, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet, Path: "/ping"})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Positive(t, resp.Latency)
		}

		assert.Equal(t, 2, stub.callCount("10.0.0.1:8080"))
		assert.Equal(t, 2, stub.callCount("10.0.0.2:8080"))

		status, err := m.GetServiceStatus("s1")
		require.NoError(t, err)
		assert.EqualValues(t, 4, status.Metrics.RequestCount)
		assert.EqualValues(t, 4, status.Metrics.SuccessCount)
		assert.Equal(t, 1.0, status.Metrics.SuccessRate())
	})

	t.Run("空请求 ID 自动生成", func(t *testing.T) {
		stub := newStubTransport()
		m := newTestMesh(t, testConfig(), stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		req := &transport.Request{Method: http.MethodGet}
		_, err := m.SendRequest(context.Background(), "s1", req)
		require.NoError(t, err)
		assert.NotEmpty(t, req.ID)
	})

	t.Run("未注册服务返回 NotFound", func(t *testing.T) {
		m := newTestMesh(t, testConfig(), newStubTransport())
		_, err := m.SendRequest(context.Background(), "ghost", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("nil 请求报错", func(t *testing.T) {
		m := newTestMesh(t, testConfig(), newStubTransport())
		_, err := m.SendRequest(context.Background(), "s1", nil)
		assert.ErrorIs(t, err, ErrRequestNil)
	})

	t.Run("关闭负载均衡时固定第一个端点", func(t *testing.T) {
		stub := newStubTransport()
		cfg := testConfig()
		cfg.EnableLoadBalancing = false
		m := newTestMesh(t, cfg, stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1", "10.0.0.2")))

		for i := 0; i < 3; i++ {
			_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
			require.NoError(t, err)
		}
		assert.Equal(t, 3, stub.callCount("10.0.0.1:8080"))
		assert.Equal(t, 0, stub.callCount("10.0.0.2:8080"))
	})
}

func TestSendRequestCircuitBreaker(t *testing.T) {
	t.Run("连续失败达到阈值后快速失败", func(t *testing.T) {
		stub := newStubTransport()
		stub.fail["10.0.0.1:8080"] = true
		cfg := testConfig()
		cfg.BreakerThreshold = 2
		m := newTestMesh(t, cfg, stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		for i := 0; i < 2; i++ {
			_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
			assert.ErrorIs(t, err, transport.ErrTransport)
		}

		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		// 快速失败不触碰传输层
		assert.Equal(t, 2, stub.callCount("10.0.0.1:8080"))

		// 路由拒绝不计入请求统计
		status, err := m.GetServiceStatus("s1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, status.Metrics.RequestCount)
		assert.EqualValues(t, 2, status.Metrics.ErrorCount)
	})

	t.Run("熔断打开立即终止重试", func(t *testing.T) {
		stub := newStubTransport()
		stub.fail["10.0.0.1:8080"] = true
		cfg := testConfig()
		cfg.BreakerThreshold = 2
		cfg.MaxRetries = 5
		m := newTestMesh(t, cfg, stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		// 两次尝试后熔断打开，剩余重试不再发出
		assert.Equal(t, 2, stub.callCount("10.0.0.1:8080"))
	})

	t.Run("关闭熔断后失败不会触发熔断", func(t *testing.T) {
		stub := newStubTransport()
		stub.fail["10.0.0.1:8080"] = true
		cfg := testConfig()
		cfg.BreakerThreshold = 2
		cfg.EnableCircuitBreaker = false
		m := newTestMesh(t, cfg, stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		for i := 0; i < 5; i++ {
			_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
			assert.ErrorIs(t, err, transport.ErrTransport)
		}
		assert.Equal(t, 5, stub.callCount("10.0.0.1:8080"))
	})
}

func TestSendRequestRetry(t *testing.T) {
	t.Run("传输失败重试到上限后返回错误", func(t *testing.T) {
		stub := newStubTransport()
		stub.fail["10.0.0.1:8080"] = true
		cfg := testConfig()
		cfg.MaxRetries = 2
		m := newTestMesh(t, cfg, stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, transport.ErrTransport)
		assert.Equal(t, 3, stub.callCount("10.0.0.1:8080"))

		// 每次尝试都计入统计
		status, err := m.GetServiceStatus("s1")
		require.NoError(t, err)
		assert.EqualValues(t, 3, status.Metrics.RequestCount)
	})

	t.Run("5xx 参与重试且耗尽后原样返回", func(t *testing.T) {
		stub := newStubTransport()
		stub.code["10.0.0.1:8080"] = http.StatusInternalServerError
		cfg := testConfig()
		cfg.MaxRetries = 2
		m := newTestMesh(t, cfg, stub)
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		resp, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, 3, stub.callCount("10.0.0.1:8080"))

		status, err := m.GetServiceStatus("s1")
		require.NoError(t, err)
		assert.EqualValues(t, 3, status.Metrics.ErrorCount)
	})

	t.Run("服务级 MaxRetries 优先于默认值", func(t *testing.T) {
		stub := newStubTransport()
		stub.fail["10.0.0.1:8080"] = true
		cfg := testConfig()
		cfg.MaxRetries = 5
		m := newTestMesh(t, cfg, stub)

		info := testService("s1", "10.0.0.1")
		info.MaxRetries = 1
		require.NoError(t, m.RegisterService(info))

		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, transport.ErrTransport)
		assert.Equal(t, 2, stub.callCount("10.0.0.1:8080"))
	})
}

func TestSendRequestTimeout(t *testing.T) {
	stub := newStubTransport()
	stub.delay = 200 * time.Millisecond
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	m := newTestMesh(t, cfg, stub)
	require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

	_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
	assert.ErrorIs(t, err, transport.ErrTimeout)

	// 超时的尝试恰好记录一次失败结果
	status, err := m.GetServiceStatus("s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Metrics.RequestCount)
	assert.EqualValues(t, 1, status.Metrics.ErrorCount)
}

func TestHealthChecksDriveRouting(t *testing.T) {
	stub := newStubTransport()
	cfg := testConfig()
	cfg.EnableHealthChecks = true
	cfg.HealthCheckInterval = 20 * time.Millisecond

	// 10.0.0.2 探活始终失败
	prober := health.ProberFunc(func(ctx context.Context, ep registry.Endpoint) (bool, error) {
		return ep.Host != "10.0.0.2", nil
	})

	m, err := New(cfg, WithTransport(stub), WithProber(prober))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1", "10.0.0.2")))

	require.Eventually(t, func() bool {
		status, err := m.GetServiceStatus("s1")
		return err == nil && status.Status == registry.StatusDegraded
	}, 2*time.Second, 10*time.Millisecond, "首轮健康检查后服务应为降级状态")

	for i := 0; i < 4; i++ {
		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		require.NoError(t, err)
	}
	assert.Equal(t, 4, stub.callCount("10.0.0.1:8080"))
	assert.Equal(t, 0, stub.callCount("10.0.0.2:8080"))
}

func TestNoHealthyEndpoint(t *testing.T) {
	stub := newStubTransport()
	cfg := testConfig()
	cfg.EnableHealthChecks = true
	cfg.HealthCheckInterval = 20 * time.Millisecond

	prober := health.ProberFunc(func(ctx context.Context, ep registry.Endpoint) (bool, error) {
		return false, nil
	})

	m, err := New(cfg, WithTransport(stub), WithProber(prober))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

	require.Eventually(t, func() bool {
		status, err := m.GetServiceStatus("s1")
		return err == nil && status.Status == registry.StatusUnhealthy
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
	assert.ErrorIs(t, err, ErrNoHealthyEndpoint)
	assert.Equal(t, 0, stub.totalCalls())

	// 路由拒绝不计入请求统计
	status, err := m.GetServiceStatus("s1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, status.Metrics.RequestCount)
}

func TestRegisterUnregister(t *testing.T) {
	t.Run("重复注册报错", func(t *testing.T) {
		m := newTestMesh(t, testConfig(), newStubTransport())
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))
		assert.ErrorIs(t, m.RegisterService(testService("s1", "10.0.0.1")), ErrServiceAlreadyRegistered)
	})

	t.Run("注销后状态查询返回 NotFound", func(t *testing.T) {
		m := newTestMesh(t, testConfig(), newStubTransport())
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))
		require.NoError(t, m.UnregisterService("s1"))

		_, err := m.GetServiceStatus("s1")
		assert.ErrorIs(t, err, ErrServiceNotFound)

		// 二次注销报错且无副作用
		assert.ErrorIs(t, m.UnregisterService("s1"), ErrServiceNotFound)
	})

	t.Run("注销销毁全部治理状态", func(t *testing.T) {
		stub := newStubTransport()
		stub.fail["10.0.0.1:8080"] = true
		cfg := testConfig()
		cfg.BreakerThreshold = 1
		m := newTestMesh(t, cfg, stub)

		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))
		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, transport.ErrTransport)
		_, err = m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, ErrCircuitOpen)

		// 重新注册后熔断与统计都是全新状态
		require.NoError(t, m.UnregisterService("s1"))
		stub.mu.Lock()
		stub.fail["10.0.0.1:8080"] = false
		stub.mu.Unlock()
		require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

		resp, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		status, err := m.GetServiceStatus("s1")
		require.NoError(t, err)
		assert.EqualValues(t, 1, status.Metrics.RequestCount)
	})
}

func TestGetMeshStatus(t *testing.T) {
	stub := newStubTransport()
	stub.fail["10.0.0.3:8080"] = true
	m := newTestMesh(t, testConfig(), stub)

	require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))
	require.NoError(t, m.RegisterService(testService("s2", "10.0.0.2")))
	require.NoError(t, m.RegisterService(testService("s3", "10.0.0.3")))

	for i := 0; i < 6; i++ {
		_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
		require.NoError(t, err)
	}
	for i := 0; i < 4; i++ {
		_, err := m.SendRequest(context.Background(), "s2", &transport.Request{Method: http.MethodGet})
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := m.SendRequest(context.Background(), "s3", &transport.Request{Method: http.MethodGet})
		assert.ErrorIs(t, err, transport.ErrTransport)
	}

	status := m.GetMeshStatus()
	assert.Equal(t, 3, status.ServiceCount)
	assert.Equal(t, 3, status.HealthyCount)
	assert.EqualValues(t, 12, status.TotalRequests)
	assert.InDelta(t, 10.0/12.0, status.SuccessRate, 1e-9)
}

func TestClose(t *testing.T) {
	m := newTestMesh(t, testConfig(), newStubTransport())
	require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1")))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.RegisterService(testService("s2", "10.0.0.2")), ErrMeshClosed)
	_, err := m.SendRequest(context.Background(), "s1", &transport.Request{Method: http.MethodGet})
	assert.ErrorIs(t, err, ErrMeshClosed)
}

func TestConcurrentSendRequest(t *testing.T) {
	stub := newStubTransport()
	m := newTestMesh(t, testConfig(), stub)
	require.NoError(t, m.RegisterService(testService("s1", "10.0.0.1", "10.0.0.2")))

	const goroutines = 8
	const perGoroutine = 25

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*perGoroutine)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := m.SendRequest(context.Background(), "s1", &transport.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/item/%d", i),
				})
				errs <- err
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	status, err := m.GetServiceStatus("s1")
	require.NoError(t, err)
	assert.EqualValues(t, goroutines*perGoroutine, status.Metrics.RequestCount)
	assert.EqualValues(t, goroutines*perGoroutine, status.Metrics.SuccessCount)

	// 轮询游标是线性化的，两个端点各拿到一半
	assert.Equal(t, goroutines*perGoroutine/2, stub.callCount("10.0.0.1:8080"))
	assert.Equal(t, goroutines*perGoroutine/2, stub.callCount("10.0.0.2:8080"))
}
