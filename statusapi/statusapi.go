// Package statusapi 把路由层的状态查询能力暴露为只读 HTTP 接口。
//
// 嵌入方把路由组挂到自己的 gin 引擎上即可：
//
//	r := gin.New()
//	statusapi.RegisterRoutes(r.Group("/mesh"), m, statusapi.WithLogger(logger))
//
// 提供的接口：
//
//	GET /status          全网格聚合状态
//	GET /services        全部服务的状态快照
//	GET /services/:id    单个服务的状态快照，未注册返回 404
//
// 接口只读，不提供任何修改网格状态的能力。
package statusapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/mesh"
	"github.com/ceyewan/meshkit/xerrors"
)

// StatusSource 状态查询能力接口，mesh.Mesh 天然满足
type StatusSource interface {
	GetServiceStatus(serviceID string) (*mesh.ServiceStatus, error)
	GetMeshStatus() *mesh.MeshStatus
	ListServices() []*mesh.ServiceStatus
}

// RegisterRoutes 在给定路由组上注册状态查询接口
func RegisterRoutes(r gin.IRouter, src StatusSource, opts ...Option) {
	options := applyOptions(opts...)
	h := &handler{src: src, logger: options.logger}

	r.GET("/status", h.meshStatus)
	r.GET("/services", h.listServices)
	r.GET("/services/:id", h.serviceStatus)
}

type handler struct {
	src    StatusSource
	logger clog.Logger
}

func (h *handler) meshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.src.GetMeshStatus())
}

func (h *handler) listServices(c *gin.Context) {
	services := h.src.ListServices()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(services),
		"services": services,
	})
}

func (h *handler) serviceStatus(c *gin.Context) {
	serviceID := c.Param("id")
	status, err := h.src.GetServiceStatus(serviceID)
	if err != nil {
		if xerrors.Is(err, mesh.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found", "service_id": serviceID})
			return
		}
		h.logger.Error("service status query failed",
			clog.String("service", serviceID),
			clog.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, status)
}
