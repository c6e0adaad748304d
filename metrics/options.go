package metrics

import "github.com/ceyewan/meshkit/clog"

// Option 配置 Meter 实例的选项函数类型
type Option func(*options)

// options 内部选项结构，存储 Meter 的配置信息
type options struct {
	logger clog.Logger
}

// WithLogger 注入日志记录器，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "metrics"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}
