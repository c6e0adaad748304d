// Package clog 为 meshkit 提供基于 slog 的结构化日志组件。
// 支持层级命名空间和 Context 字段提取。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，适配组件化架构
//   - 零外部依赖（仅依赖 Go 标准库）
//   - 采用函数式选项模式，符合 meshkit 标准
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("Hello, World!", clog.String("key", "value"))
//
// 创建子 Logger：
//
//	meshLogger := logger.WithNamespace("mesh")
//	meshLogger.Info("service registered", clog.String("service", "user-service"))
package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 支持五个日志级别：Debug、Info、Warn、Error、Fatal。
// 每个级别都有带 Context 和不带 Context 的版本。
type Logger interface {
	// 基础日志级别方法
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// 带 Context 的版本，会提取通过 WithContextField 配置的字段
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回附加了固定字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 返回附加了命名空间的子 Logger，多级以 "." 连接
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别
	SetLevel(level Level) error
}
