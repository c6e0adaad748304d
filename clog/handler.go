package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// newHandler 根据配置构建底层 slog.Handler（内部使用）
//
// 返回的 levelVar 用于运行时动态调整级别。
func newHandler(config *Config) (slog.Handler, *slog.LevelVar, error) {
	var out io.Writer
	switch config.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output %s: %w", config.Output, err)
		}
		out = f
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// 统一时间戳格式，保证 json 与 console 输出一致
			if a.Key == slog.TimeKey && len(groups) == 0 {
				if t, ok := a.Value.Any().(interface{ Format(string) string }); ok {
					a.Value = slog.StringValue(t.Format(TimeFormat))
				}
			}
			return a
		},
	}

	if config.Format == "json" {
		return slog.NewJSONHandler(out, opts), levelVar, nil
	}
	return slog.NewTextHandler(out, opts), levelVar, nil
}
