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
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/clock"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/tfbench/app/config"
	"github.com/carv-ics-forth/tfserving-bench/pkg/metrics"
	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

const (
	BenchAll        = "all"
	BenchThroughput = "throughput"
	BenchLatency    = "latency"
	BenchClassify   = "classify"
)

// BenchMarker is one benchmark run against the model server
type BenchMarker interface {
	Prepare(ctx context.Context) error
	BenchMark(ctx context.Context) error
	Clean(ctx context.Context) error
	Name() string
	String() string
}

// Predictor sends one predict request
type Predictor interface {
	Predict(ctx context.Context, req *serving.PredictRequest) (*serving.PredictResponse, error)
}

// ReadinessChecker blocks until the model can serve
type ReadinessChecker interface {
	WaitForReady(ctx context.Context, interval time.Duration) error
}

type BenchMark struct {
	Client          Predictor
	Readiness       ReadinessChecker
	Request         *serving.PredictRequest
	Store           storage.Store
	Metrics         *metrics.Metrics
	Clock           clock.PassiveClock
	Out             io.Writer
	SubBenchMarkers []BenchMarker
	RunID           string
	WaitReady       bool
	ReadyInterval   time.Duration
}

func NewBenchMark(cfg *config.BenchmarkConfiguration) (*BenchMark, error) {
	if cfg.Requests <= 0 {
		return nil, fmt.Errorf("requests per iteration must be a positive integer, got %d", cfg.Requests)
	}
	if cfg.Request == nil {
		return nil, fmt.Errorf("no predict request prepared")
	}

	b := &BenchMark{
		Client:          cfg.Client,
		Readiness:       cfg.Client,
		Request:         cfg.Request,
		Store:           cfg.Store,
		Metrics:         cfg.Metrics,
		Clock:           cfg.Clock,
		Out:             cfg.Out,
		RunID:           cfg.RunID,
		WaitReady:       cfg.WaitReady,
		ReadyInterval:   cfg.ReadyInterval,
		SubBenchMarkers: make([]BenchMarker, 0, 3),
	}
	if b.Clock == nil {
		b.Clock = clock.RealClock{}
	}
	if b.Out == nil {
		b.Out = os.Stdout
	}

	if cfg.BenchType == BenchAll || cfg.BenchType == BenchClassify {
		b.SubBenchMarkers = append(b.SubBenchMarkers,
			NewClassify(b.Client, b.Request, cfg.Labels, cfg.Background, cfg.Warmup, b.Out))
	}
	if cfg.BenchType == BenchAll || cfg.BenchType == BenchThroughput {
		t, err := NewThroughput(b.Client, b.Request, b.Store, b.Clock, cfg.Warmup, cfg.Requests, cfg.Iterations)
		if err != nil {
			return nil, err
		}
		t.Metrics = b.Metrics
		t.Out = b.Out
		b.SubBenchMarkers = append(b.SubBenchMarkers, t)
	}
	if cfg.BenchType == BenchAll || cfg.BenchType == BenchLatency {
		l, err := NewLatency(b.Client, b.Request, b.Store, b.Clock, cfg.Warmup, cfg.Requests)
		if err != nil {
			return nil, err
		}
		l.Out = b.Out
		b.SubBenchMarkers = append(b.SubBenchMarkers, l)
	}
	if len(b.SubBenchMarkers) == 0 {
		return nil, fmt.Errorf("unknown bench type %q", cfg.BenchType)
	}
	return b, nil
}

// Run executes every sub benchmark in order. The first failing one aborts
// the whole run, there is no retry.
func (m *BenchMark) Run(ctx context.Context) error {
	if err := m.Prepare(ctx); err != nil {
		return err
	}

	for _, b := range m.SubBenchMarkers {
		klog.Infof("######## Start to %s ########", b)

		if err := b.Prepare(ctx); err != nil {
			klog.Errorf("%s prepare error %v", b, err)
			m.clean(ctx, b)
			return err
		}
		if err := b.BenchMark(ctx); err != nil {
			klog.Errorf("%s error %v", b, err)
			m.clean(ctx, b)
			return err
		}

		if err := b.Clean(ctx); err != nil {
			klog.Errorf("%s clean error %v", b, err)
			return err
		}
		klog.Infof("%s successfully ...", b)
	}

	klog.Infof("-------- All benchmark exec end, run %s --------", m.RunID)
	return nil
}

func (m *BenchMark) clean(ctx context.Context, b BenchMarker) {
	if err := b.Clean(ctx); err != nil {
		klog.Errorf("%s clean error %v", b, err)
	}
}

// Prepare waits for the model server when asked to
func (m *BenchMark) Prepare(ctx context.Context) error {
	if !m.WaitReady || m.Readiness == nil {
		return nil
	}
	interval := m.ReadyInterval
	if interval <= 0 {
		interval = time.Second
	}
	klog.Infof("Wait for model server ready, poll every %v", interval)
	if err := m.Readiness.WaitForReady(ctx, interval); err != nil {
		return fmt.Errorf("model server not ready: %w", err)
	}
	klog.Infof("Model server ready")
	return nil
}

// warmup sends n requests and drops their timing
func warmup(ctx context.Context, client Predictor, req *serving.PredictRequest, n int) error {
	for i := 0; i < n; i++ {
		if _, err := client.Predict(ctx, req); err != nil {
			return fmt.Errorf("warm-up request %d: %w", i, err)
		}
	}
	if n > 0 {
		klog.V(2).Infof("sent %d warm-up requests", n)
	}
	return nil
}
