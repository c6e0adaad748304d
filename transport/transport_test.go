package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshkit/registry"
)

// endpointFor 把 httptest 服务器地址转换为 registry.Endpoint
func endpointFor(t *testing.T, server *httptest.Server) registry.Endpoint {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return registry.Endpoint{
		ServiceID: "s1",
		Host:      u.Hostname(),
		Port:      port,
		Protocol:  "http",
		Weight:    1,
		Healthy:   true,
	}
}

func TestHTTPTransportDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users", r.URL.Path)
		assert.Equal(t, "abc", r.Header.Get("X-Request-Id"))
		w.Header().Set("X-Backend", "b1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport()
	resp, err := tr.Do(context.Background(), endpointFor(t, server), &Request{
		Method:  http.MethodGet,
		Path:    "/api/users",
		Headers: map[string]string{"X-Request-Id": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "b1", resp.Headers["X-Backend"])
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestHTTPTransportBasePath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/api/users", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ep := endpointFor(t, server)
	ep.Path = "/v1"

	tr := NewHTTPTransport()
	resp, err := tr.Do(context.Background(), ep, &Request{Method: http.MethodGet, Path: "api/users"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPTransportServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// 5xx 不是传输错误，响应原样返回，成败判定交给上层
	tr := NewHTTPTransport()
	resp, err := tr.Do(context.Background(), endpointFor(t, server), &Request{Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHTTPTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tr := NewHTTPTransport()
	_, err := tr.Do(ctx, endpointFor(t, server), &Request{Method: http.MethodGet})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	tr := NewHTTPTransport()
	ep := registry.Endpoint{Host: "127.0.0.1", Port: 1, Protocol: "http"}

	_, err := tr.Do(context.Background(), ep, &Request{Method: http.MethodGet})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestHTTPProber(t *testing.T) {
	t.Run("2xx 健康", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ep := endpointFor(t, server)
		ep.HealthCheckPath = "/healthz"

		healthy, err := NewHTTPProber().Probe(context.Background(), ep)
		require.NoError(t, err)
		assert.True(t, healthy)
	})

	t.Run("非 2xx 不健康", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		healthy, err := NewHTTPProber().Probe(context.Background(), endpointFor(t, server))
		require.NoError(t, err)
		assert.False(t, healthy)
	})

	t.Run("默认健康检查路径为 /health", func(t *testing.T) {
		var seenPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		_, err := NewHTTPProber().Probe(context.Background(), endpointFor(t, server))
		require.NoError(t, err)
		assert.Equal(t, "/health", seenPath)
	})

	t.Run("连接失败返回错误", func(t *testing.T) {
		ep := registry.Endpoint{Host: "127.0.0.1", Port: 1, Protocol: "http"}
		healthy, err := NewHTTPProber().Probe(context.Background(), ep)
		assert.Error(t, err)
		assert.False(t, healthy)
	})
}

func TestJoinURL(t *testing.T) {
	ep := registry.Endpoint{Host: "10.0.0.1", Port: 8080, Protocol: "http"}

	assert.Equal(t, "http://10.0.0.1:8080", joinURL(ep, ""))
	assert.Equal(t, "http://10.0.0.1:8080/users", joinURL(ep, "/users"))
	assert.Equal(t, "http://10.0.0.1:8080/users", joinURL(ep, "users"))

	ep.Path = "/v1/"
	assert.Equal(t, "http://10.0.0.1:8080/v1/users", joinURL(ep, "users"))
}
