package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// CloudWatchAPI is the subset of the CloudWatch client the publisher uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const cloudWatchBatchSize = 20

// CloudWatchPublisher periodically copies counter deltas and histogram sample
// counts from a prometheus registry into CloudWatch.
type CloudWatchPublisher struct {
	client    CloudWatchAPI
	gatherer  prometheus.Gatherer
	namespace string
	logger    *zap.Logger

	mu   sync.Mutex
	last map[string]float64
}

// NewCloudWatchPublisher creates a publisher for gatherer.
func NewCloudWatchPublisher(client CloudWatchAPI, gatherer prometheus.Gatherer, namespace string, logger *zap.Logger) *CloudWatchPublisher {
	return &CloudWatchPublisher{
		client:    client,
		gatherer:  gatherer,
		namespace: namespace,
		logger:    logger.Named("cloudwatch"),
		last:      make(map[string]float64),
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (p *CloudWatchPublisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Flush(flushCtx); err != nil {
				p.logger.Warn("Final metrics flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("Metrics flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes everything recorded since the previous flush.
func (p *CloudWatchPublisher) Flush(ctx context.Context) error {
	families, err := p.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	datums := p.collect(families, time.Now())
	for i := 0; i < len(datums); i += cloudWatchBatchSize {
		end := i + cloudWatchBatchSize
		if end > len(datums) {
			end = len(datums)
		}
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: datums[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to put metric data: %w", err)
		}
	}

	p.logger.Debug("Metrics flushed", zap.Int("datums", len(datums)))
	return nil
}

func (p *CloudWatchPublisher) collect(families []*dto.MetricFamily, now time.Time) []types.MetricDatum {
	p.mu.Lock()
	defer p.mu.Unlock()

	var datums []types.MetricDatum
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var total float64
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				total = metric.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				total = float64(metric.GetHistogram().GetSampleCount())
			default:
				continue
			}

			dims := dimensions(metric.GetLabel())
			key := family.GetName() + "|" + dimensionKey(dims)
			delta := total - p.last[key]
			p.last[key] = total
			if delta <= 0 {
				continue
			}

			datums = append(datums, types.MetricDatum{
				MetricName: aws.String(family.GetName()),
				Dimensions: dims,
				Value:      aws.Float64(delta),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(now),
			})
		}
	}
	return datums
}

func dimensions(labels []*dto.LabelPair) []types.Dimension {
	dims := make([]types.Dimension, 0, len(labels))
	for _, l := range labels {
		dims = append(dims, types.Dimension{
			Name:  aws.String(l.GetName()),
			Value: aws.String(l.GetValue()),
		})
	}
	return dims
}

func dimensionKey(dims []types.Dimension) string {
	parts := make([]string, 0, len(dims))
	for _, d := range dims {
		parts = append(parts, aws.ToString(d.Name)+"="+aws.ToString(d.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
