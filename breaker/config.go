package breaker

import "time"

// Policy 单个服务的熔断策略
type Policy struct {
	// Threshold 连续失败阈值，达到后熔断器打开
	// 默认: 5
	Threshold int `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// OpenTimeout 熔断持续时间
	// 熔断器进入 Open 状态后，等待此时间后转为 HalfOpen
	// 默认: 30s
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout" mapstructure:"open_timeout"`
}

// Config 熔断器组件配置
type Config struct {
	// Threshold 默认连续失败阈值（应用到所有未单独配置的服务）
	Threshold int `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// OpenTimeout 默认熔断持续时间
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout" mapstructure:"open_timeout"`

	// Services 按服务 ID 覆盖默认策略（可选）
	Services map[string]Policy `json:"services" yaml:"services" mapstructure:"services"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:   5,
		OpenTimeout: 30 * time.Second,
	}
}

// setDefaults 填充零值字段
func (c *Config) setDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

// policyFor 返回服务生效的策略：覆盖项优先，零值回落到默认值
func (c *Config) policyFor(serviceID string) Policy {
	policy := Policy{Threshold: c.Threshold, OpenTimeout: c.OpenTimeout}
	if override, ok := c.Services[serviceID]; ok {
		if override.Threshold > 0 {
			policy.Threshold = override.Threshold
		}
		if override.OpenTimeout > 0 {
			policy.OpenTimeout = override.OpenTimeout
		}
	}
	return policy
}
