package registry

import (
	"fmt"
	"time"
)

// Status 服务聚合健康状态
type Status string

const (
	StatusUnknown   Status = "unknown"   // 尚未完成首次健康检查
	StatusHealthy   Status = "healthy"   // 全部端点健康
	StatusDegraded  Status = "degraded"  // 部分端点健康
	StatusUnhealthy Status = "unhealthy" // 无端点健康
)

// Endpoint 代表服务的一个可寻址实例
//
// 健康相关字段（Healthy、LastHealthCheckAt）只由健康检查器写入，
// 其他组件只读。
type Endpoint struct {
	ServiceID         string    `json:"service_id" yaml:"service_id" mapstructure:"service_id"`
	Host              string    `json:"host" yaml:"host" mapstructure:"host"`
	Port              int       `json:"port" yaml:"port" mapstructure:"port"`
	Protocol          string    `json:"protocol" yaml:"protocol" mapstructure:"protocol"` // http|https
	Path              string    `json:"path" yaml:"path" mapstructure:"path"`
	Weight            int       `json:"weight" yaml:"weight" mapstructure:"weight"` // >= 1
	HealthCheckPath   string    `json:"health_check_path" yaml:"health_check_path" mapstructure:"health_check_path"`
	Healthy           bool      `json:"healthy" yaml:"-" mapstructure:"-"`
	LastHealthCheckAt time.Time `json:"last_health_check_at" yaml:"-" mapstructure:"-"`
}

// Address 返回端点的基础地址，如 http://10.0.0.1:8080
func (e Endpoint) Address() string {
	protocol := e.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s:%d", protocol, e.Host, e.Port)
}

// Key 返回端点在服务内的唯一标识，用于日志和负载信号
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ServiceInfo 代表一个已注册的服务及其端点
//
// Status 是派生字段，由健康检查器根据端点健康计算得出，调用方不要直接设置。
type ServiceInfo struct {
	ID                  string        `json:"id" yaml:"id" mapstructure:"id"`
	Name                string        `json:"name" yaml:"name" mapstructure:"name"`
	Version             string        `json:"version" yaml:"version" mapstructure:"version"`
	Endpoints           []Endpoint    `json:"endpoints" yaml:"endpoints" mapstructure:"endpoints"`
	Dependencies        []string      `json:"dependencies" yaml:"dependencies" mapstructure:"dependencies"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval" mapstructure:"health_check_interval"`
	RequestTimeout      time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	MaxRetries          int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	Status              Status        `json:"status" yaml:"-" mapstructure:"-"`
}

// clone 返回深拷贝，保证内部状态不被外部修改（内部使用）
func (s *ServiceInfo) clone() *ServiceInfo {
	copied := *s
	copied.Endpoints = append([]Endpoint(nil), s.Endpoints...)
	copied.Dependencies = append([]string(nil), s.Dependencies...)
	return &copied
}
