package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLinkWrite("create", "blocks")
		m.RecordValidationFailure("DUPLICATE_LINK")
		m.RecordCacheHit()
		m.RecordCacheMiss()
		m.ObserveRepository("create", time.Now(), errors.New("boom"))
		m.ObserveTraversal("graph", 3)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("linkgraph_test")

	m.RecordLinkWrite("create", "blocks")
	m.RecordLinkWrite("create", "blocks")
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.ObserveRepository("find_by_id", time.Now(), nil)
	m.ObserveRepository("find_by_id", time.Now(), errors.New("boom"))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	value := func(name string) []float64 {
		f, ok := byName["linkgraph_test_"+name]
		require.True(t, ok, "metric %s", name)
		var out []float64
		for _, metric := range f.GetMetric() {
			if f.GetType() == dto.MetricType_HISTOGRAM {
				out = append(out, float64(metric.GetHistogram().GetSampleCount()))
			} else {
				out = append(out, metric.GetCounter().GetValue())
			}
		}
		return out
	}
	assert.Equal(t, []float64{2}, value("link_writes_total"))
	assert.ElementsMatch(t, []float64{1, 2}, value("link_cache_requests_total"))
	assert.Equal(t, []float64{1}, value("link_repository_errors_total"))
	assert.Equal(t, []float64{2}, value("link_repository_duration_seconds"))
	assert.NotContains(t, byName, "linkgraph_test_link_traversal_nodes", "unused vectors are not exported")
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchPublisher_FlushSendsDeltas(t *testing.T) {
	m := NewMetrics("linkgraph_test")
	client := &fakeCloudWatch{}
	p := NewCloudWatchPublisher(client, m.Registry(), "LinkGraph/test", zap.NewNop())
	ctx := context.Background()

	m.RecordLinkWrite("create", "blocks")
	m.RecordLinkWrite("create", "blocks")
	require.NoError(t, p.Flush(ctx))
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "LinkGraph/test", aws.ToString(client.inputs[0].Namespace))
	require.Len(t, client.inputs[0].MetricData, 1)
	datum := client.inputs[0].MetricData[0]
	assert.Equal(t, "linkgraph_test_link_writes_total", aws.ToString(datum.MetricName))
	assert.Equal(t, 2.0, aws.ToFloat64(datum.Value))
	assert.Len(t, datum.Dimensions, 2)

	// Nothing new: no datums, no call.
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, client.inputs, 1)

	m.RecordLinkWrite("create", "blocks")
	require.NoError(t, p.Flush(ctx))
	require.Len(t, client.inputs, 2)
	assert.Equal(t, 1.0, aws.ToFloat64(client.inputs[1].MetricData[0].Value))
}

func TestCloudWatchPublisher_Batches(t *testing.T) {
	m := NewMetrics("linkgraph_test")
	for i := 0; i < 25; i++ {
		m.RecordValidationFailure(string(rune('A' + i)))
	}
	client := &fakeCloudWatch{}
	p := NewCloudWatchPublisher(client, m.Registry(), "ns", zap.NewNop())

	require.NoError(t, p.Flush(context.Background()))
	require.Len(t, client.inputs, 2)
	assert.Len(t, client.inputs[0].MetricData, cloudWatchBatchSize)
	assert.Len(t, client.inputs[1].MetricData, 5)
}

func TestCloudWatchPublisher_Error(t *testing.T) {
	m := NewMetrics("linkgraph_test")
	m.RecordCacheHit()
	client := &fakeCloudWatch{err: errors.New("denied")}
	p := NewCloudWatchPublisher(client, m.Registry(), "ns", zap.NewNop())

	assert.ErrorContains(t, p.Flush(context.Background()), "denied")
}

func TestTracer_Disabled(t *testing.T) {
	tracer := NewTracer("linkgraph", false)
	assert.False(t, tracer.Enabled())

	ctx := context.Background()
	got, end := tracer.Start(ctx, "op")
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() { end(errors.New("boom")) })

	called := false
	err := tracer.TraceFunction(ctx, "fn", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
