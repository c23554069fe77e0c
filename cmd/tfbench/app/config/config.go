package config

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"k8s.io/apimachinery/pkg/util/clock"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/tfbench/app/options"
	"github.com/carv-ics-forth/tfserving-bench/pkg/metrics"
	"github.com/carv-ics-forth/tfserving-bench/pkg/projectinfo"
	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

// RunIDHeader carries the benchmark run id on every request
const RunIDHeader = "X-Benchmark-Run"

// BenchmarkConfiguration represents configuration of one benchmark run
type BenchmarkConfiguration struct {
	Client        *serving.Client
	Request       *serving.PredictRequest
	Labels        []string
	Store         storage.Store
	Metrics       *metrics.Metrics
	Clock         clock.PassiveClock
	Out           io.Writer
	RunID         string
	PredictURL    string
	StatusURL     string
	BenchType     string
	Background    serving.BackgroundMode
	Requests      int
	Iterations    int
	Warmup        int
	WaitReady     bool
	ReadyInterval time.Duration
	StubAddr      string
}

// Complete converts *options.BenchMarkOptions to *BenchmarkConfiguration.
// It reads the image and labels, so every file error surfaces before the
// first request is sent.
func Complete(o *options.BenchMarkOptions) (*BenchmarkConfiguration, error) {
	if o.Requests <= 0 {
		return nil, fmt.Errorf("request count must be a positive integer, got %d", o.Requests)
	}
	background, err := serving.ParseBackgroundMode(o.BackgroundClass)
	if err != nil {
		return nil, err
	}

	predictURL, statusURL := ModelURLs(o.Scheme, o.Host, o.Port, o.Model)

	imagePath, err := homedir.Expand(o.ImagePath)
	if err != nil {
		return nil, err
	}
	img, err := serving.ReadImage(imagePath)
	if err != nil {
		return nil, err
	}
	req, err := serving.NewPredictRequest(img, serving.RequestOptions{
		Kind:   serving.PayloadKind(o.Payload),
		Resize: o.Resize,
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("predict request of %d bytes built from %s (%s)", len(req.Body), imagePath, req.Kind)

	var labels []string
	if o.BenchType == "all" || o.BenchType == "classify" {
		labelsPath, err := homedir.Expand(o.LabelsPath)
		if err != nil {
			return nil, err
		}
		if labels, err = serving.LoadClassLabels(labelsPath); err != nil {
			return nil, err
		}
		klog.V(2).Infof("loaded %d class labels from %s", len(labels), labelsPath)
	}

	outputDir, err := homedir.Expand(o.OutputDir)
	if err != nil {
		return nil, err
	}
	store, err := util.NewDiskStorage(outputDir)
	if err != nil {
		return nil, fmt.Errorf("could not open output dir %s, %w", outputDir, err)
	}

	runID := uuid.New().String()
	m := metrics.NewMetrics()
	client, err := serving.NewClient(serving.ClientConfig{
		PredictURL: predictURL,
		StatusURL:  statusURL,
		Transport:  m.InstrumentRoundTripper(http.DefaultTransport),
		Timeout:    o.RequestTimeout,
		UserAgent:  projectinfo.UserAgent(projectinfo.GetBenchName()),
		Header:     http.Header{RunIDHeader: []string{runID}},
	})
	if err != nil {
		return nil, err
	}

	return &BenchmarkConfiguration{
		Client:        client,
		Request:       req,
		Labels:        labels,
		Store:         store,
		Metrics:       m,
		Clock:         clock.RealClock{},
		Out:           os.Stdout,
		RunID:         runID,
		PredictURL:    predictURL,
		StatusURL:     statusURL,
		BenchType:     o.BenchType,
		Background:    background,
		Requests:      o.Requests,
		Iterations:    o.Iterations,
		Warmup:        o.Warmup,
		WaitReady:     o.WaitReady,
		ReadyInterval: time.Second,
		StubAddr:      o.StubAddr,
	}, nil
}

// ModelURLs returns the predict and model status routes of model
func ModelURLs(scheme, host string, port int, model string) (string, string) {
	status := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/v1/models/" + model,
	}
	return status.String() + ":predict", status.String()
}
