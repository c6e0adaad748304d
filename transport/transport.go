// Package transport 定义请求分发能力接口及其 HTTP 适配器。
//
// meshkit 核心永远不直接做网络 I/O：路由层通过 Transport 接口分发请求，
// 通过 health.Prober 接口探活。本包提供基于 resty 的生产适配器，
// 测试场景注入确定性的桩实现即可。
package transport

import (
	"context"
	"time"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// Request 一次逻辑调用的请求记录，仅在单次调用期间存在
type Request struct {
	ID      string            // 请求标识，留空时由 mesh 生成
	Method  string            // HTTP 方法
	Path    string            // 相对服务基础路径的请求路径
	Headers map[string]string // 请求头
	Body    []byte            // 请求体
	Timeout time.Duration     // 单次分发超时，零值时取服务配置
}

// Response 一次逻辑调用的响应记录
type Response struct {
	StatusCode int               // HTTP 状态码
	Headers    map[string]string // 响应头
	Body       []byte            // 响应体
	Latency    time.Duration     // 本次调用耗时，由请求执行方填写
}

// Transport 请求分发能力接口，由嵌入方注入
type Transport interface {
	// Do 将请求分发到指定端点
	// ctx 携带调用超时；返回错误表示请求未能完成（连接失败、超时等）
	Do(ctx context.Context, endpoint registry.Endpoint, req *Request) (*Response, error)
}

// 错误定义
var (
	// ErrTransport 传输层失败（连接拒绝、DNS 失败等）
	ErrTransport = xerrors.New("transport: request failed")

	// ErrTimeout 请求超时
	ErrTimeout = xerrors.New("transport: request timed out")
)
