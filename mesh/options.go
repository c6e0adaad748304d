package mesh

import (
	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/health"
	"github.com/ceyewan/meshkit/metrics"
	"github.com/ceyewan/meshkit/transport"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	transport transport.Transport
	prober    health.Prober
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "mesh"，并向下传递给各治理组件
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("mesh")
		}
	}
}

// WithMeter 设置指标收集器，传入 nil 时不上报外部指标
// Meter 的生命周期由调用方管理，Close 不会关闭它
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter == nil {
			o.meter = metrics.Discard()
		} else {
			o.meter = meter
		}
	}
}

// WithTransport 设置请求分发适配器，默认使用 transport.NewHTTPTransport()
func WithTransport(tp transport.Transport) Option {
	return func(o *options) {
		if tp != nil {
			o.transport = tp
		}
	}
}

// WithProber 设置健康探活适配器，默认使用 transport.NewHTTPProber()
func WithProber(prober health.Prober) Option {
	return func(o *options) {
		if prober != nil {
			o.prober = prober
		}
	}
}

// applyOptions 应用所有选项并返回配置（内部使用）
func applyOptions(opts ...Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transport == nil {
		o.transport = transport.NewHTTPTransport()
	}
	if o.prober == nil {
		o.prober = transport.NewHTTPProber()
	}
	return o
}
