package transport

import (
	"context"
	"errors"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// HTTPTransport 基于 resty 的 HTTP 请求适配器
//
// 重试由 mesh 层统一控制，本适配器不做任何重试。
type HTTPTransport struct {
	client *resty.Client
}

// NewHTTPTransport 创建 HTTP 传输适配器
func NewHTTPTransport() *HTTPTransport {
	client := resty.New()
	client.SetRetryCount(0)
	return &HTTPTransport{client: client}
}

// Do 实现 Transport 接口
func (t *HTTPTransport) Do(ctx context.Context, endpoint registry.Endpoint, req *Request) (*Response, error) {
	r := t.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, joinURL(endpoint, req.Path))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, xerrors.Wrapf(ErrTimeout, "endpoint %s", endpoint.Key())
		}
		return nil, xerrors.Wrapf(ErrTransport, "endpoint %s: %v", endpoint.Key(), err)
	}

	headers := make(map[string]string, len(resp.Header()))
	for key := range resp.Header() {
		headers[key] = resp.Header().Get(key)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Body:       resp.Body(),
	}, nil
}

// joinURL 拼接端点基础地址、服务基础路径与请求路径
func joinURL(endpoint registry.Endpoint, path string) string {
	base := endpoint.Address()
	if prefix := strings.Trim(endpoint.Path, "/"); prefix != "" {
		base += "/" + prefix
	}
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
