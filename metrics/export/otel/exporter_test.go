package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/handson"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot handson.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() handson.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := handson.MetricsSnapshot{
		Counters:   make(map[handson.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[handson.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				return data.DataPoints[0].Value, true
			case metricdata.Gauge[int64]:
				return data.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{
		snapshot: handson.MetricsSnapshot{
			Counters: map[handson.MetricID]uint64{
				handson.MetricLoginSuccess:        3,
				handson.MetricRateLimitStoreError: 1,
			},
			Histograms: map[handson.MetricID][]uint64{
				handson.MetricLoginLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 5,
	}

	exp, err := NewExporter(provider.Meter("handson-test"), src)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	checks := map[string]int64{
		"handson_login_success_total":                   3,
		"handson_rate_limit_store_error_total":          1,
		"handson_audit_dropped_total":                   5,
		"handson_login_latency_seconds_bucket_le_0_005": 1,
		"handson_login_latency_seconds_count":           8,
	}
	for name, want := range checks {
		got, ok := findSum(rm, name)
		if !ok {
			t.Fatalf("metric %s not collected", name)
		}
		if got != want {
			t.Fatalf("%s: got %d want %d", name, got, want)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newMeter()
	if _, err := NewExporter(provider.Meter("handson-test"), nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewExporter(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{
		snapshot: handson.MetricsSnapshot{
			Counters:   map[handson.MetricID]uint64{handson.MetricLoginSuccess: 1},
			Histograms: map[handson.MetricID][]uint64{},
		},
	}

	exp, err := NewExporter(provider.Meter("handson-test"), src)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[handson.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
