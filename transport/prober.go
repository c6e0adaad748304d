package transport

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/xerrors"
)

// HTTPProber 基于 resty 的 HTTP 探活适配器，实现 health.Prober
//
// 对端点的健康检查路径发起 GET，2xx 视为健康，非 2xx 视为不健康，
// 请求本身失败（连接拒绝、超时）返回错误由检查器按不健康处理。
type HTTPProber struct {
	client *resty.Client
}

// NewHTTPProber 创建 HTTP 探活适配器
func NewHTTPProber() *HTTPProber {
	client := resty.New()
	client.SetRetryCount(0)
	return &HTTPProber{client: client}
}

// Probe 实现 health.Prober 接口
func (p *HTTPProber) Probe(ctx context.Context, endpoint registry.Endpoint) (bool, error) {
	path := endpoint.HealthCheckPath
	if path == "" {
		path = "/health"
	}

	// 健康检查路径相对端点根路径，不叠加服务基础路径
	url := endpoint.Address() + "/" + strings.TrimLeft(path, "/")
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return false, xerrors.Wrapf(ErrTransport, "probe %s: %v", endpoint.Key(), err)
	}
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300, nil
}
