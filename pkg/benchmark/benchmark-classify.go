package benchmark

import (
	"context"
	"fmt"
	"io"

	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/serving"
)

// Classify sends one request and reports the top class of that response
type Classify struct {
	Client     Predictor
	Request    *serving.PredictRequest
	Labels     []string
	Background serving.BackgroundMode
	Out        io.Writer
	Warmup     int
	Result     *serving.Classification
}

func NewClassify(client Predictor, req *serving.PredictRequest, labels []string, background serving.BackgroundMode, warmup int, out io.Writer) *Classify {
	return &Classify{
		Client:     client,
		Request:    req,
		Labels:     labels,
		Background: background,
		Warmup:     warmup,
		Out:        out,
	}
}

func (c *Classify) Prepare(ctx context.Context) error {
	c.Result = nil
	return warmup(ctx, c.Client, c.Request, c.Warmup)
}

func (c *Classify) BenchMark(ctx context.Context) error {
	resp, err := c.Client.Predict(ctx, c.Request)
	if err != nil {
		return err
	}

	result, err := serving.Classify(resp, c.Labels, c.Background)
	if result == nil {
		return fmt.Errorf("classify response: %w", err)
	}
	if err != nil {
		klog.Warningf("no label for top class: %v", err)
	}
	c.Result = result
	klog.Infof("classification: %s", result)

	if c.Out != nil {
		fmt.Fprintf(c.Out, "The index of the highest probability is: %d\n", result.Index)
		fmt.Fprintf(c.Out, "The highest probability is: %v\n", result.Probability)
		fmt.Fprintf(c.Out, "The length of probabilities is: %d\n", result.Width)
		if result.Label != "" {
			fmt.Fprintf(c.Out, "Class predicted: %s\n", result.Label)
		}
	}
	return nil
}

func (c *Classify) Clean(ctx context.Context) error {
	return nil
}

func (c *Classify) Name() string {
	return BenchClassify
}

func (c *Classify) String() string {
	return fmt.Sprintf("benchMark %s", c.Name())
}

var _ BenchMarker = &Classify{}
