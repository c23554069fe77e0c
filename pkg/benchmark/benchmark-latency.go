package benchmark

import (
	"context"
	"fmt"
	"io"
	"time"

	"k8s.io/apimachinery/pkg/util/clock"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

// Latency times every call on its own, so tail latency is visible
type Latency struct {
	Client     Predictor
	Request    *serving.PredictRequest
	Store      storage.Store
	Clock      clock.PassiveClock
	Out        io.Writer
	Warmup     int
	Requests   int
	Samples    []float64
	Result     *LatencyResult
	ReportPath string
}

func NewLatency(client Predictor, req *serving.PredictRequest, store storage.Store, c clock.PassiveClock, warmup, requests int) (*Latency, error) {
	if requests <= 0 {
		return nil, fmt.Errorf("requests must be a positive integer, got %d", requests)
	}
	if warmup < 0 {
		return nil, fmt.Errorf("warm-up count must not be negative, got %d", warmup)
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Latency{
		Client:   client,
		Request:  req,
		Store:    store,
		Clock:    c,
		Warmup:   warmup,
		Requests: requests,
		Samples:  make([]float64, 0, requests),
	}, nil
}

func (l *Latency) Prepare(ctx context.Context) error {
	l.Samples = l.Samples[:0]
	l.Result = nil
	return warmup(ctx, l.Client, l.Request, l.Warmup)
}

func (l *Latency) BenchMark(ctx context.Context) error {
	for i := 0; i < l.Requests; i++ {
		start := l.Clock.Now()
		if _, err := l.Client.Predict(ctx, l.Request); err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		l.Samples = append(l.Samples, float64(l.Clock.Since(start))/float64(time.Millisecond))
	}

	result, err := NewLatencyResult(l.Samples)
	if err != nil {
		return err
	}
	l.Result = result
	klog.Infof("latency over %d requests: mean %.2f ms, p50 %.2f ms, p99 %.2f ms",
		result.Count, result.Mean, result.P50, result.P99)

	if l.Out != nil {
		PrintLatency(l.Out, result)
	}
	if l.Store == nil {
		return nil
	}
	path, err := WriteLatencyReport(l.Store, l.Requests, result)
	if err != nil {
		return err
	}
	l.ReportPath = path
	klog.Infof("latency report written to %s", path)
	return nil
}

func (l *Latency) Clean(ctx context.Context) error {
	return nil
}

func (l *Latency) Name() string {
	return BenchLatency
}

func (l *Latency) String() string {
	return fmt.Sprintf("benchMark %s", l.Name())
}

var _ BenchMarker = &Latency{}
