package benchmark

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/carv-ics-forth/tfserving-bench/cmd/tfbench/app/config"
	"github.com/carv-ics-forth/tfserving-bench/pkg/metrics"
	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util"
	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

// fakePredictor advances the fake clock by step on every successful call
type fakePredictor struct {
	clock  *clock.FakeClock
	step   time.Duration
	calls  int
	failAt int
	err    error
	resp   *serving.PredictResponse
}

func (f *fakePredictor) Predict(ctx context.Context, req *serving.PredictRequest) (*serving.PredictResponse, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, f.err
	}
	if f.clock != nil {
		f.clock.Step(f.step)
	}
	return f.resp, nil
}

var (
	testRequest = &serving.PredictRequest{Kind: serving.PayloadB64, Body: []byte(`{"instances":[{"b64":"AAEC"}]}`)}
	baseTime    = time.Unix(1650000000, 0)
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := util.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func readThroughputReport(t *testing.T, store storage.Store, requests int) ThroughputReport {
	t.Helper()
	data, err := store.Get(ThroughputReportName(requests))
	require.NoError(t, err)
	var report ThroughputReport
	require.NoError(t, json.Unmarshal(data, &report))
	return report
}

func TestThroughputFixedDelay(t *testing.T) {
	fc := clock.NewFakeClock(baseTime)
	p := &fakePredictor{clock: fc, step: 10 * time.Millisecond}
	store := newTestStore(t)

	const warm, requests, iterations = 2, 4, 3
	tp, err := NewThroughput(p, testRequest, store, fc, warm, requests, iterations)
	require.NoError(t, err)
	var out bytes.Buffer
	tp.Out = &out

	require.NoError(t, tp.Prepare(context.Background()))
	assert.Equal(t, warm, p.calls)
	require.NoError(t, tp.BenchMark(context.Background()))
	assert.Equal(t, warm+requests*iterations, p.calls)

	require.Len(t, tp.Results, iterations)
	// warm-up is outside of the first window
	assert.InDelta(t, unixSeconds(baseTime.Add(warm*10*time.Millisecond)), tp.Results[0].StartTime, 1e-6)
	for i, r := range tp.Results {
		assert.InDelta(t, 100.0, r.Throughput, 1e-6, "iteration %d", i)
		assert.InDelta(t, 10.0, r.LatencyMillis(requests), 1e-3, "iteration %d", i)
		assert.Greater(t, r.EndTime, r.StartTime)
	}

	report := readThroughputReport(t, store, requests)
	require.Len(t, report, iterations)
	for _, key := range []string{"0", "1", "2"} {
		r, ok := report[key]
		require.True(t, ok, key)
		assert.Greater(t, r.Throughput, 0.0)
		assert.Greater(t, r.EndTime, r.StartTime)
	}
	assert.Equal(t, store.Path(ThroughputReportName(requests)), tp.ReportPath)
	assert.Contains(t, out.String(), "THROUGHPUT")
	assert.Contains(t, out.String(), "mean")
}

func TestThroughputSingleRequest(t *testing.T) {
	fc := clock.NewFakeClock(baseTime)
	p := &fakePredictor{clock: fc, step: 250 * time.Millisecond}

	tp, err := NewThroughput(p, testRequest, nil, fc, 0, 1, 1)
	require.NoError(t, err)
	require.NoError(t, tp.Prepare(context.Background()))
	require.NoError(t, tp.BenchMark(context.Background()))
	require.Len(t, tp.Results, 1)
	assert.InDelta(t, 4.0, tp.Results[0].Throughput, 1e-9)
	assert.Empty(t, tp.ReportPath)
}

func TestThroughputZeroElapsed(t *testing.T) {
	fc := clock.NewFakeClock(baseTime)
	p := &fakePredictor{clock: fc}

	tp, err := NewThroughput(p, testRequest, nil, fc, 0, 3, 1)
	require.NoError(t, err)
	require.NoError(t, tp.BenchMark(context.Background()))
	assert.Equal(t, 0.0, tp.Results[0].Throughput)
}

func TestNewThroughputRejectsBadCounts(t *testing.T) {
	p := &fakePredictor{}
	for _, c := range []struct{ warmup, requests, iterations int }{
		{1, 0, 1},
		{1, -5, 1},
		{1, 1, 0},
		{-1, 1, 1},
	} {
		_, err := NewThroughput(p, testRequest, nil, nil, c.warmup, c.requests, c.iterations)
		assert.Error(t, err, "%+v", c)
	}
	assert.Equal(t, 0, p.calls)
}

func TestThroughputAbortsOnError(t *testing.T) {
	fc := clock.NewFakeClock(baseTime)
	statusErr := &serving.StatusError{URL: "http://model/v1/models/resnet:predict", StatusCode: http.StatusInternalServerError}
	p := &fakePredictor{clock: fc, step: time.Millisecond, failAt: 4, err: statusErr}
	store := newTestStore(t)

	tp, err := NewThroughput(p, testRequest, store, fc, 1, 2, 3)
	require.NoError(t, err)
	b := &BenchMark{SubBenchMarkers: []BenchMarker{tp}}

	err = b.Run(context.Background())
	require.Error(t, err)
	var got *serving.StatusError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.Equal(t, 4, p.calls)

	_, err = store.Get(ThroughputReportName(2))
	assert.Equal(t, storage.ErrStorageNotFound, err)
}

func TestWarmupErrorAborts(t *testing.T) {
	p := &fakePredictor{failAt: 1, err: errors.New("connection refused")}
	tp, err := NewThroughput(p, testRequest, nil, nil, 3, 1, 1)
	require.NoError(t, err)
	assert.Error(t, tp.Prepare(context.Background()))
	assert.Equal(t, 1, p.calls)
}

func TestLatency(t *testing.T) {
	fc := clock.NewFakeClock(baseTime)
	p := &fakePredictor{clock: fc, step: 20 * time.Millisecond}
	store := newTestStore(t)

	l, err := NewLatency(p, testRequest, store, fc, 1, 5)
	require.NoError(t, err)
	var out bytes.Buffer
	l.Out = &out

	require.NoError(t, l.Prepare(context.Background()))
	require.NoError(t, l.BenchMark(context.Background()))
	assert.Equal(t, 6, p.calls)

	require.NotNil(t, l.Result)
	assert.Equal(t, 5, l.Result.Count)
	assert.InDelta(t, 20.0, l.Result.Mean, 1e-9)
	assert.InDelta(t, 20.0, l.Result.Min, 1e-9)
	assert.InDelta(t, 20.0, l.Result.Max, 1e-9)
	assert.InDelta(t, 20.0, l.Result.P99, 1e-9)

	data, err := store.Get(LatencyReportName(5))
	require.NoError(t, err)
	var got LatencyResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *l.Result, got)
	assert.Contains(t, out.String(), "P99")

	_, err = NewLatency(p, testRequest, store, fc, 1, 0)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	resp := &serving.PredictResponse{Predictions: []serving.Prediction{{Probabilities: []float64{0.1, 0.2, 0.7}}}}
	cases := []struct {
		name   string
		labels []string
		mode   serving.BackgroundMode
		index  int
		label  string
	}{
		{"offset", []string{"cat", "dog"}, serving.BackgroundAuto, 2, "dog"},
		{"same width", []string{"cat", "dog", "fox"}, serving.BackgroundAuto, 2, "fox"},
		{"no label", nil, serving.BackgroundOff, 2, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := &fakePredictor{resp: resp}
			var out bytes.Buffer
			cl := NewClassify(p, testRequest, c.labels, c.mode, 1, &out)

			require.NoError(t, cl.Prepare(context.Background()))
			require.NoError(t, cl.BenchMark(context.Background()))
			assert.Equal(t, 2, p.calls)
			require.NotNil(t, cl.Result)
			assert.Equal(t, c.index, cl.Result.Index)
			assert.Equal(t, 3, cl.Result.Width)
			assert.Equal(t, c.label, cl.Result.Label)
			assert.Contains(t, out.String(), "The index of the highest probability is: 2")
			if c.label != "" {
				assert.Contains(t, out.String(), "Class predicted: "+c.label)
			}
		})
	}
}

func TestClassifyEmptyResponse(t *testing.T) {
	p := &fakePredictor{resp: &serving.PredictResponse{}}
	cl := NewClassify(p, testRequest, []string{"a"}, serving.BackgroundAuto, 0, nil)
	assert.Error(t, cl.BenchMark(context.Background()))
}

func newModelServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/models/resnet":
			_, _ = w.Write([]byte(`{"model_version_status":[{"version":"1","state":"AVAILABLE"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/models/resnet:predict":
			atomic.AddInt32(calls, 1)
			_, _ = w.Write([]byte(`{"predictions":[{"probabilities":[0.1,0.7,0.2]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestConfiguration(t *testing.T, srv *httptest.Server, benchType string) *config.BenchmarkConfiguration {
	t.Helper()
	m := metrics.NewMetrics()
	predictURL, statusURL := srv.URL+"/v1/models/resnet:predict", srv.URL+"/v1/models/resnet"
	client, err := serving.NewClient(serving.ClientConfig{
		PredictURL: predictURL,
		StatusURL:  statusURL,
		Transport:  m.InstrumentRoundTripper(nil),
	})
	require.NoError(t, err)
	return &config.BenchmarkConfiguration{
		Client:        client,
		Request:       testRequest,
		Labels:        []string{"a", "b", "c"},
		Store:         newTestStore(t),
		Metrics:       m,
		Clock:         clock.RealClock{},
		Out:           &bytes.Buffer{},
		RunID:         "run-1",
		PredictURL:    predictURL,
		StatusURL:     statusURL,
		BenchType:     benchType,
		Background:    serving.BackgroundAuto,
		Requests:      3,
		Iterations:    2,
		Warmup:        1,
		WaitReady:     true,
		ReadyInterval: 10 * time.Millisecond,
	}
}

func TestBenchMarkRunAll(t *testing.T) {
	var calls int32
	srv := newModelServer(t, &calls)
	defer srv.Close()

	cfg := newTestConfiguration(t, srv, BenchAll)
	b, err := NewBenchMark(cfg)
	require.NoError(t, err)

	names := make([]string, 0, len(b.SubBenchMarkers))
	for _, sub := range b.SubBenchMarkers {
		names = append(names, sub.Name())
	}
	assert.Equal(t, []string{BenchClassify, BenchThroughput, BenchLatency}, names)

	require.NoError(t, b.Run(context.Background()))
	// classify 1+1, throughput 1+3*2, latency 1+3
	assert.EqualValues(t, 13, atomic.LoadInt32(&calls))
	assert.Contains(t, cfg.Out.(*bytes.Buffer).String(), "Class predicted: b")

	report := readThroughputReport(t, cfg.Store, 3)
	assert.Len(t, report, 2)
	_, err = cfg.Store.Get(LatencyReportName(3))
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	cfg.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "tfbench_iterations_total 2")
	assert.Contains(t, rec.Body.String(), `tfbench_predict_requests_total{code="200",method="post"} 13`)
}

func TestNewBenchMarkSelectsType(t *testing.T) {
	var calls int32
	srv := newModelServer(t, &calls)
	defer srv.Close()

	b, err := NewBenchMark(newTestConfiguration(t, srv, BenchLatency))
	require.NoError(t, err)
	require.Len(t, b.SubBenchMarkers, 1)
	assert.Equal(t, BenchLatency, b.SubBenchMarkers[0].Name())

	_, err = NewBenchMark(newTestConfiguration(t, srv, "bogus"))
	assert.Error(t, err)

	cfg := newTestConfiguration(t, srv, BenchAll)
	cfg.Requests = 0
	_, err = NewBenchMark(cfg)
	assert.Error(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestBenchMarkRunStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Servable not found for request: Latest(resnet)"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := newTestConfiguration(t, srv, BenchThroughput)
	cfg.WaitReady = false
	b, err := NewBenchMark(cfg)
	require.NoError(t, err)

	err = b.Run(context.Background())
	var statusErr *serving.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestWriteThroughputReportRemovesStaleTmp(t *testing.T) {
	dir := t.TempDir()
	store, err := util.NewDiskStorage(dir)
	require.NoError(t, err)

	name := ThroughputReportName(7)
	stale := filepath.Join(dir, "tmp_"+name)
	require.NoError(t, os.WriteFile(stale, []byte("{"), 0644))
	unrelated := filepath.Join(dir, "tmp_notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0644))

	results := []IterationResult{{Throughput: 10, StartTime: 1, EndTime: 2}}
	path, err := WriteThroughputReport(store, 7, results)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name), path)

	// a second run overwrites the first report
	results[0].Throughput = 20
	_, err = WriteThroughputReport(store, 7, results)
	require.NoError(t, err)
	report := readThroughputReport(t, store, 7)
	assert.Equal(t, 20.0, report["0"].Throughput)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
