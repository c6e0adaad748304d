package mesh

import (
	"time"

	"github.com/ceyewan/meshkit/balancer"
	"github.com/ceyewan/meshkit/breaker"
)

// Config 路由层配置
//
// 所有字段都有默认值，配置文件中只需写出要覆盖的部分：
//
//	mesh:
//	  load_balancing_strategy: weighted_round_robin
//	  request_timeout: 3s
//	  max_retries: 2
type Config struct {
	// LoadBalancingStrategy 负载均衡策略
	// 可选: round_robin / weighted_round_robin / least_connections /
	// least_response_time / random
	// 默认: round_robin
	LoadBalancingStrategy string `json:"load_balancing_strategy" yaml:"load_balancing_strategy" mapstructure:"load_balancing_strategy"`

	// HealthCheckInterval 默认健康检查间隔，服务自身的
	// HealthCheckInterval 优先
	// 默认: 30s
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval" mapstructure:"health_check_interval"`

	// DiscoveryInterval 服务发现刷新间隔
	// 预留给外部服务发现适配器，进程内目录不使用
	// 默认: 60s
	DiscoveryInterval time.Duration `json:"discovery_interval" yaml:"discovery_interval" mapstructure:"discovery_interval"`

	// BreakerThreshold 熔断器默认连续失败阈值
	// 默认: 5
	BreakerThreshold int `json:"breaker_threshold" yaml:"breaker_threshold" mapstructure:"breaker_threshold"`

	// BreakerOpenTimeout 熔断器默认熔断持续时间
	// 默认: 30s
	BreakerOpenTimeout time.Duration `json:"breaker_open_timeout" yaml:"breaker_open_timeout" mapstructure:"breaker_open_timeout"`

	// BreakerOverrides 按服务 ID 覆盖熔断策略（可选）
	BreakerOverrides map[string]breaker.Policy `json:"breaker_overrides" yaml:"breaker_overrides" mapstructure:"breaker_overrides"`

	// RequestTimeout 默认请求超时，请求与服务自身的超时优先
	// 默认: 5s
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`

	// MaxRetries 默认最大重试次数，服务自身的 MaxRetries 优先
	// 0 表示不重试，setDefaults 不会覆盖显式的 0
	// DefaultConfig 中为 3
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// EnableHealthChecks 是否启用健康检查任务
	// 关闭后注册的端点视为始终可路由
	EnableHealthChecks bool `json:"enable_health_checks" yaml:"enable_health_checks" mapstructure:"enable_health_checks"`

	// EnableCircuitBreaker 是否启用熔断门禁
	EnableCircuitBreaker bool `json:"enable_circuit_breaker" yaml:"enable_circuit_breaker" mapstructure:"enable_circuit_breaker"`

	// EnableLoadBalancing 是否启用负载均衡
	// 关闭后固定选择健康池中的第一个端点
	EnableLoadBalancing bool `json:"enable_load_balancing" yaml:"enable_load_balancing" mapstructure:"enable_load_balancing"`

	// EnableMetrics 是否上报 OpenTelemetry 指标
	// 只影响外部指标导出，GetServiceStatus / GetMeshStatus 依赖的
	// 进程内请求统计始终开启
	EnableMetrics bool `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
}

// DefaultConfig 返回默认配置，全部治理能力开启
func DefaultConfig() *Config {
	return &Config{
		LoadBalancingStrategy: string(balancer.RoundRobin),
		HealthCheckInterval:   30 * time.Second,
		DiscoveryInterval:     60 * time.Second,
		BreakerThreshold:      5,
		BreakerOpenTimeout:    30 * time.Second,
		RequestTimeout:        5 * time.Second,
		MaxRetries:            3,
		EnableHealthChecks:    true,
		EnableCircuitBreaker:  true,
		EnableLoadBalancing:   true,
		EnableMetrics:         true,
	}
}

// setDefaults 填充零值字段，布尔开关与 MaxRetries 保持调用方给定的值
func (c *Config) setDefaults() {
	if c.LoadBalancingStrategy == "" {
		c.LoadBalancingStrategy = string(balancer.RoundRobin)
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 60 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}
