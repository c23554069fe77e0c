/*
Copyright 2022 The OpenYurt Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package benchmark

import (
	"context"
	"fmt"
	"io"
	"time"

	"k8s.io/apimachinery/pkg/util/clock"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/metrics"
	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

// Throughput sends Requests sequential calls per iteration for Iterations
// iterations and reports the block throughput of every iteration.
type Throughput struct {
	Client     Predictor
	Request    *serving.PredictRequest
	Store      storage.Store
	Metrics    *metrics.Metrics
	Clock      clock.PassiveClock
	Out        io.Writer
	Warmup     int
	Requests   int
	Iterations int
	Results    []IterationResult
	ReportPath string
}

func NewThroughput(client Predictor, req *serving.PredictRequest, store storage.Store, c clock.PassiveClock, warmup, requests, iterations int) (*Throughput, error) {
	if requests <= 0 {
		return nil, fmt.Errorf("requests per iteration must be a positive integer, got %d", requests)
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be a positive integer, got %d", iterations)
	}
	if warmup < 0 {
		return nil, fmt.Errorf("warm-up count must not be negative, got %d", warmup)
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Throughput{
		Client:     client,
		Request:    req,
		Store:      store,
		Clock:      c,
		Warmup:     warmup,
		Requests:   requests,
		Iterations: iterations,
		Results:    make([]IterationResult, 0, iterations),
	}, nil
}

func (t *Throughput) Prepare(ctx context.Context) error {
	t.Results = t.Results[:0]
	return warmup(ctx, t.Client, t.Request, t.Warmup)
}

func (t *Throughput) BenchMark(ctx context.Context) error {
	for i := 0; i < t.Iterations; i++ {
		result, err := t.iteration(ctx)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		t.Results = append(t.Results, result)
		if t.Metrics != nil {
			t.Metrics.ObserveIteration(t.Name(), result.Throughput)
		}
		klog.Infof("iteration %d: %d requests, throughput %.2f req/s, latency %.2f ms",
			i, t.Requests, result.Throughput, result.LatencyMillis(t.Requests))
	}

	if t.Out != nil {
		PrintThroughput(t.Out, t.Requests, t.Results)
	}
	if t.Store == nil {
		return nil
	}
	path, err := WriteThroughputReport(t.Store, t.Requests, t.Results)
	if err != nil {
		return err
	}
	t.ReportPath = path
	klog.Infof("throughput report written to %s", path)
	return nil
}

// iteration times one block of Requests calls. The window opens after
// warm-up has finished and closes after the last response.
func (t *Throughput) iteration(ctx context.Context) (IterationResult, error) {
	start := t.Clock.Now()
	for j := 0; j < t.Requests; j++ {
		if _, err := t.Client.Predict(ctx, t.Request); err != nil {
			return IterationResult{}, fmt.Errorf("request %d: %w", j, err)
		}
	}
	end := t.Clock.Now()

	return newIterationResult(t.Requests, start, end), nil
}

func newIterationResult(requests int, start, end time.Time) IterationResult {
	r := IterationResult{
		StartTime: unixSeconds(start),
		EndTime:   unixSeconds(end),
	}
	if elapsed := end.Sub(start).Seconds(); elapsed > 0 {
		r.Throughput = float64(requests) / elapsed
	} else {
		klog.Warningf("iteration of %d requests took no measurable time", requests)
	}
	return r
}

func (t *Throughput) Clean(ctx context.Context) error {
	return nil
}

func (t *Throughput) Name() string {
	return BenchThroughput
}

func (t *Throughput) String() string {
	return fmt.Sprintf("benchMark %s", t.Name())
}

var _ BenchMarker = &Throughput{}
