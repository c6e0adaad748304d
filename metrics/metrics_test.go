package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 注意：Prometheus exporter 注册到默认 Registry，同一进程内只创建一个启用状态的 Meter。
var testMeter = Must(&Config{
	Enabled:     true,
	ServiceName: "meshkit-test",
	Version:     "v0.0.1",
})

func TestNewNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewDisabled(t *testing.T) {
	meter, err := New(&Config{Enabled: false})
	require.NoError(t, err)

	// 禁用时返回 noop 实现，所有操作不报错也无副作用
	counter, err := meter.Counter("noop_total", "noop")
	require.NoError(t, err)
	counter.Inc(context.Background())
	counter.Add(context.Background(), 5)

	gauge, err := meter.Gauge("noop_gauge", "noop")
	require.NoError(t, err)
	gauge.Set(context.Background(), 1)

	hist, err := meter.Histogram("noop_hist", "noop")
	require.NoError(t, err)
	hist.Record(context.Background(), 0.1)

	assert.NoError(t, meter.Shutdown(context.Background()))
}

func TestCounter(t *testing.T) {
	ctx := context.Background()

	counter, err := testMeter.Counter("mesh_requests_total", "路由请求总数")
	require.NoError(t, err)

	counter.Inc(ctx, L(LabelService, "s1"), L(LabelOutcome, OutcomeSuccess))
	counter.Add(ctx, 3, L(LabelService, "s1"), L(LabelOutcome, OutcomeError))
}

func TestGauge(t *testing.T) {
	ctx := context.Background()

	gauge, err := testMeter.Gauge("mesh_healthy_endpoints", "健康端点数")
	require.NoError(t, err)

	gauge.Set(ctx, 2, L(LabelService, "s1"))
	gauge.Inc(ctx, L(LabelService, "s1"))
	gauge.Dec(ctx, L(LabelService, "s1"))
}

func TestHistogram(t *testing.T) {
	ctx := context.Background()

	hist, err := testMeter.Histogram("mesh_request_duration_seconds", "请求耗时", WithUnit("s"))
	require.NoError(t, err)

	hist.Record(ctx, 0.042, L(LabelService, "s1"))
}

func TestLabelKey(t *testing.T) {
	assert.Equal(t, "", labelKey(nil))
	assert.Equal(t, "a=1", labelKey([]Label{L("a", "1")}))
	assert.Equal(t, "a=1|b=2", labelKey([]Label{L("a", "1"), L("b", "2")}))
}

func TestToAttributes(t *testing.T) {
	assert.Nil(t, toAttributes(nil))

	attrs := toAttributes([]Label{L("service", "s1")})
	require.Len(t, attrs, 1)
	assert.Equal(t, "service", string(attrs[0].Key))
	assert.Equal(t, "s1", attrs[0].Value.AsString())
}

func TestDiscard(t *testing.T) {
	meter := Discard()
	counter, err := meter.Counter("x", "y")
	require.NoError(t, err)
	counter.Inc(context.Background())
}
