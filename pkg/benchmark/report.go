package benchmark

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/montanaflynn/stats"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/util/storage"
)

// IterationResult is the timing of one block of sequential requests.
// Times are Unix seconds.
type IterationResult struct {
	Throughput float64 `json:"throughput"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

// LatencyMillis is the block averaged latency, not a per call measurement
func (r IterationResult) LatencyMillis(requests int) float64 {
	if requests <= 0 {
		return 0
	}
	return (r.EndTime - r.StartTime) * 1000 / float64(requests)
}

// ThroughputReport maps the iteration index to its result
type ThroughputReport map[string]IterationResult

// NewThroughputReport keys results by their position, "0".."M-1"
func NewThroughputReport(results []IterationResult) ThroughputReport {
	report := make(ThroughputReport, len(results))
	for i, r := range results {
		report[strconv.Itoa(i)] = r
	}
	return report
}

// ThroughputReportName is the report file name for a request count
func ThroughputReportName(requests int) string {
	return fmt.Sprintf("throughput_%d_requests.json", requests)
}

// WriteThroughputReport stores the report and returns its path
func WriteThroughputReport(store storage.Store, requests int, results []IterationResult) (string, error) {
	return writeReport(store, ThroughputReportName(requests), NewThroughputReport(results))
}

// PrintThroughput writes a per iteration table to w
func PrintThroughput(w io.Writer, requests int, results []IterationResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITERATION\tREQUESTS\tTHROUGHPUT (req/s)\tLATENCY (ms)\tSTART\tEND")
	throughputs := make([]float64, 0, len(results))
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%d\t%.3f\t%.3f\t%.6f\t%.6f\n",
			i, requests, r.Throughput, r.LatencyMillis(requests), r.StartTime, r.EndTime)
		throughputs = append(throughputs, r.Throughput)
	}
	if mean, err := stats.Mean(throughputs); err == nil {
		fmt.Fprintf(tw, "mean\t%d\t%.3f\t\t\t\n", requests, mean)
	}
	tw.Flush()
}

// LatencyResult summarizes per call latencies in milliseconds
type LatencyResult struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ms"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// NewLatencyResult computes the summary of samples
func NewLatencyResult(samples []float64) (*LatencyResult, error) {
	data := stats.Float64Data(samples)
	if data.Len() == 0 {
		return nil, fmt.Errorf("no latency samples")
	}

	r := &LatencyResult{Count: data.Len()}
	var err error
	if r.Mean, err = data.Mean(); err != nil {
		return nil, err
	}
	if r.Min, err = data.Min(); err != nil {
		return nil, err
	}
	if r.Max, err = data.Max(); err != nil {
		return nil, err
	}
	if r.P50, err = data.Percentile(50); err != nil {
		return nil, err
	}
	if r.P95, err = data.Percentile(95); err != nil {
		return nil, err
	}
	if r.P99, err = data.Percentile(99); err != nil {
		return nil, err
	}
	return r, nil
}

// LatencyReportName is the report file name for a request count
func LatencyReportName(requests int) string {
	return fmt.Sprintf("latency_%d_requests.json", requests)
}

// WriteLatencyReport stores r and returns its path
func WriteLatencyReport(store storage.Store, requests int, r *LatencyResult) (string, error) {
	return writeReport(store, LatencyReportName(requests), r)
}

// PrintLatency writes the latency summary to w
func PrintLatency(w io.Writer, r *LatencyResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUESTS\tMEAN\tMIN\tP50\tP95\tP99\tMAX")
	fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n", r.Count, r.Mean, r.Min, r.P50, r.P95, r.P99, r.Max)
	tw.Flush()
}

func writeReport(store storage.Store, name string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := store.Recover(name); err != nil {
		klog.Warningf("could not recover report %s, %v", name, err)
	}
	if _, err := store.Get(name); err == nil {
		klog.Warningf("report %s exists and is overwritten", store.Path(name))
	}
	if err := store.Create(name, data); err != nil {
		klog.Errorf("write report %s error %v", name, err)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return store.Path(name), nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
