package health

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger          clog.Logger
	defaultInterval time.Duration
	probeTimeout    time.Duration
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "health"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("health")
		}
	}
}

// WithDefaultInterval 设置服务未声明检查间隔时的默认值，默认 30s
func WithDefaultInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.defaultInterval = interval
		}
	}
}

// WithProbeTimeout 设置单次探测超时，默认 5s
func WithProbeTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.probeTimeout = timeout
		}
	}
}

// applyOptions 应用所有选项并返回配置（内部使用）
func applyOptions(opts ...Option) *options {
	o := &options{
		logger:          clog.Discard(),
		defaultInterval: 30 * time.Second,
		probeTimeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
