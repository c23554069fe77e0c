package serving

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

const maxErrorBody = 4 << 10

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// ClientConfig configures a Client
type ClientConfig struct {
	// PredictURL is the full :predict route, e.g. http://host:8501/v1/models/resnet:predict
	PredictURL string
	// StatusURL is the model status route, e.g. http://host:8501/v1/models/resnet
	StatusURL string
	Transport http.RoundTripper
	// Timeout bounds a single request, 0 leaves it to the transport
	Timeout   time.Duration
	UserAgent string
	Header    http.Header
}

// Client talks to the TensorFlow Serving REST API
type Client struct {
	predictURL string
	statusURL  string
	client     *http.Client
	userAgent  string
	header     http.Header
}

// NewClient creates a Client from cfg
func NewClient(cfg ClientConfig) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.PredictURL); err != nil {
		return nil, fmt.Errorf("invalid predict url %q: %w", cfg.PredictURL, err)
	}
	if cfg.StatusURL != "" {
		if _, err := url.ParseRequestURI(cfg.StatusURL); err != nil {
			return nil, fmt.Errorf("invalid status url %q: %w", cfg.StatusURL, err)
		}
	}

	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	header := make(http.Header)
	for k, v := range cfg.Header {
		header[k] = v
	}

	return &Client{
		predictURL: cfg.PredictURL,
		statusURL:  cfg.StatusURL,
		client:     &http.Client{Transport: rt, Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		header:     header,
	}, nil
}

// PredictURL returns the predict route this client posts to
func (c *Client) PredictURL() string {
	return c.predictURL
}

// Predict posts req and decodes the response. Any non-2xx status is
// returned as a *StatusError.
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil predict request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predictURL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", c.predictURL, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp := &PredictResponse{}
	if err := c.do(httpReq, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ModelStatus fetches the model version status
func (c *Client) ModelStatus(ctx context.Context) (*ModelStatusResponse, error) {
	if c.statusURL == "" {
		return nil, fmt.Errorf("no model status url configured")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", c.statusURL, err)
	}

	status := &ModelStatusResponse{}
	if err := c.do(httpReq, status); err != nil {
		return nil, err
	}
	return status, nil
}

// WaitForReady polls the model status until a version is AVAILABLE or ctx ends
func (c *Client) WaitForReady(ctx context.Context, interval time.Duration) error {
	return wait.PollImmediateUntil(interval, func() (bool, error) {
		status, err := c.ModelStatus(ctx)
		if err != nil {
			klog.V(2).Infof("model at %s not ready: %v", c.statusURL, err)
			return false, nil
		}
		if !status.Available() {
			klog.V(2).Infof("model at %s has no available version: %+v", c.statusURL, status.ModelVersionStatus)
			return false, nil
		}
		return true, nil
	}, ctx.Done())
}

func (c *Client) do(req *http.Request, v interface{}) error {
	for k, vals := range c.header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	klog.V(5).Infof("%s %s", req.Method, req.URL)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer func() {
		// drain so the transport can reuse the connection
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response of %s: %w", req.URL, err)
	}
	return nil
}
