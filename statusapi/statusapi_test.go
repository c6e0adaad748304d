package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshkit/mesh"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// stubSource 确定性的状态源桩
type stubSource struct {
	services map[string]*mesh.ServiceStatus
	status   *mesh.MeshStatus
}

func (s *stubSource) GetServiceStatus(serviceID string) (*mesh.ServiceStatus, error) {
	status, ok := s.services[serviceID]
	if !ok {
		return nil, xerrors.Wrapf(mesh.ErrServiceNotFound, "service %q", serviceID)
	}
	return status, nil
}

func (s *stubSource) GetMeshStatus() *mesh.MeshStatus {
	return s.status
}

func (s *stubSource) ListServices() []*mesh.ServiceStatus {
	services := make([]*mesh.ServiceStatus, 0, len(s.services))
	for _, status := range s.services {
		services = append(services, status)
	}
	return services
}

func newTestRouter(src StatusSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/mesh"), src)
	return r
}

func testSource() *stubSource {
	return &stubSource{
		services: map[string]*mesh.ServiceStatus{
			"user-service": {
				ServiceID: "user-service",
				Name:      "User Service",
				Status:    registry.StatusDegraded,
				Endpoints: []registry.Endpoint{
					{Host: "10.0.0.1", Port: 8080, Healthy: true},
					{Host: "10.0.0.2", Port: 8080},
				},
				Metrics: mesh.ServiceMetrics{
					RequestCount: 10,
					SuccessCount: 8,
					ErrorCount:   2,
					TotalLatency: 500 * time.Millisecond,
				},
			},
		},
		status: &mesh.MeshStatus{
			ServiceCount:  1,
			DegradedCount: 1,
			TotalRequests: 10,
			SuccessRate:   0.8,
		},
	}
}

func TestMeshStatusRoute(t *testing.T) {
	r := newTestRouter(testSource())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mesh/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var got mesh.MeshStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.ServiceCount)
	assert.Equal(t, 1, got.DegradedCount)
	assert.EqualValues(t, 10, got.TotalRequests)
	assert.InDelta(t, 0.8, got.SuccessRate, 1e-9)
}

func TestListServicesRoute(t *testing.T) {
	r := newTestRouter(testSource())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mesh/services", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Count    int                   `json:"count"`
		Services []*mesh.ServiceStatus `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
	require.Len(t, got.Services, 1)
	assert.Equal(t, "user-service", got.Services[0].ServiceID)
}

func TestServiceStatusRoute(t *testing.T) {
	t.Run("已注册服务返回快照", func(t *testing.T) {
		r := newTestRouter(testSource())

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mesh/services/user-service", nil))

		require.Equal(t, http.StatusOK, w.Code)

		var got mesh.ServiceStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "user-service", got.ServiceID)
		assert.Equal(t, registry.StatusDegraded, got.Status)
		assert.EqualValues(t, 10, got.Metrics.RequestCount)
	})

	t.Run("未注册服务返回 404", func(t *testing.T) {
		r := newTestRouter(testSource())

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mesh/services/ghost", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
