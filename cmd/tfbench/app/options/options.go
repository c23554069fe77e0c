package options

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
)

// HostEnv overrides the default model server host
const HostEnv = "TF_SERVING_HOST"

// BenchMarkOptions is the main settings for tfbench
type BenchMarkOptions struct {
	Requests        int // per iteration, the positional argument
	Host            string
	Port            int
	Scheme          string
	Model           string
	ImagePath       string
	LabelsPath      string
	Warmup          int
	Iterations      int
	BenchType       string
	Payload         string
	Resize          uint
	BackgroundClass string
	OutputDir       string
	TimeOut         int // second
	RequestTimeout  time.Duration
	WaitReady       bool
	StubAddr        string
}

// NewBenchmarkOptions creates a new BenchMarkOptions with a default config.
func NewBenchmarkOptions() *BenchMarkOptions {
	o := &BenchMarkOptions{
		Host:            "127.0.0.1",
		Port:            8501,
		Scheme:          "http",
		Model:           "resnet",
		ImagePath:       "dog.jpg",
		LabelsPath:      "imagenet_classes.txt",
		Warmup:          1,
		Iterations:      10,
		BenchType:       "all",
		Payload:         string(serving.PayloadB64),
		BackgroundClass: string(serving.BackgroundAuto),
		OutputDir:       ".",
		TimeOut:         60 * 30, // second
	}
	if host := os.Getenv(HostEnv); host != "" {
		o.Host = host
	}
	return o
}

// ParseRequests reads the per iteration request count from the positional arguments
func (o *BenchMarkOptions) ParseRequests(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing request count argument")
	}
	if len(args) > 1 {
		return fmt.Errorf("unknown command: %s", args[1])
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("request count %q is not an integer", args[0])
	}
	o.Requests = n
	return nil
}

// Validate validates BenchMarkOptions
func (o *BenchMarkOptions) Validate() error {
	if o.Requests <= 0 {
		return fmt.Errorf("request count must be a positive integer, got %d", o.Requests)
	}
	if o.Iterations <= 0 {
		return fmt.Errorf("iterations must be a positive integer, got %d", o.Iterations)
	}
	if o.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %d", o.Warmup)
	}
	if len(o.Host) == 0 {
		return fmt.Errorf("host is empty")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("port %d out of range", o.Port)
	}
	if o.Scheme != "http" && o.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", o.Scheme)
	}
	if len(o.Model) == 0 {
		return fmt.Errorf("model is empty")
	}
	switch o.BenchType {
	case "all", "throughput", "latency", "classify":
	default:
		return fmt.Errorf("bench type must be one of all|throughput|latency|classify, got %q", o.BenchType)
	}
	switch serving.PayloadKind(o.Payload) {
	case serving.PayloadB64, serving.PayloadTensor:
	default:
		return fmt.Errorf("payload must be b64 or tensor, got %q", o.Payload)
	}
	if _, err := serving.ParseBackgroundMode(o.BackgroundClass); err != nil {
		return err
	}
	if o.TimeOut <= 0 {
		return fmt.Errorf("timeout must be a positive number of seconds, got %d", o.TimeOut)
	}
	if o.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}

	return nil
}

// AddFlags returns flags for tfbench
func (o *BenchMarkOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Host, "host", o.Host, fmt.Sprintf("model server host, defaults to $%s when set", HostEnv))
	fs.IntVar(&o.Port, "port", o.Port, "model server REST port")
	fs.StringVar(&o.Scheme, "scheme", o.Scheme, "model server scheme (http|https)")
	fs.StringVar(&o.Model, "model", o.Model, "served model name")
	fs.StringVar(&o.ImagePath, "image", o.ImagePath, "image file sent in every request")
	fs.StringVar(&o.LabelsPath, "labels", o.LabelsPath, "newline delimited class label file")
	fs.IntVar(&o.Warmup, "warmup", o.Warmup, "warm-up requests sent before timing")
	fs.IntVar(&o.Iterations, "iterations", o.Iterations, "timed iterations")
	fs.StringVar(&o.BenchType, "bench", o.BenchType, "bench type(all|throughput|latency|classify)")
	fs.StringVar(&o.Payload, "payload", o.Payload, "request payload (b64|tensor)")
	fs.UintVar(&o.Resize, "resize", o.Resize, "square edge the image is resized to for tensor payloads, 0 keeps the size")
	fs.StringVar(&o.BackgroundClass, "background-class", o.BackgroundClass, "treat output index 0 as background (auto|true|false)")
	fs.StringVar(&o.OutputDir, "output-dir", o.OutputDir, "directory for the json reports")
	fs.IntVar(&o.TimeOut, "timeout", o.TimeOut, "bench mark timeout (second)")
	fs.DurationVar(&o.RequestTimeout, "request-timeout", o.RequestTimeout, "timeout of a single request, 0 means none")
	fs.BoolVar(&o.WaitReady, "wait-ready", o.WaitReady, "wait until the model reports an AVAILABLE version")
	fs.StringVar(&o.StubAddr, "stub-addr", o.StubAddr, "serve healthz, metrics and pprof on this address, empty disables it")
}

// AddGlobalFlags adds the klog flags to fs
func AddGlobalFlags(fs *pflag.FlagSet) {
	local := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(local)
	fs.AddGoFlagSet(local)
}
