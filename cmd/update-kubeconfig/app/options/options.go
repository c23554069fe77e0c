package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/carv-ics-forth/tfserving-bench/pkg/kubeconfig"
)

// UpdateKubeconfigOptions is the main settings for update-kubeconfig
type UpdateKubeconfigOptions struct {
	KubeConfig    string // kubeconfig file rewritten in place
	Server        string // new api server url
	Verify        bool
	VerifyTimeout time.Duration
	Create        bool // write a fresh kubeconfig when the file is missing
	Version       bool
}

// NewUpdateKubeconfigOptions creates a new UpdateKubeconfigOptions with a default config.
func NewUpdateKubeconfigOptions() *UpdateKubeconfigOptions {
	o := &UpdateKubeconfigOptions{
		KubeConfig:    kubeconfig.DefaultPath,
		Server:        kubeconfig.DefaultServer,
		VerifyTimeout: 5 * time.Second,
	}
	return o
}

// Validate validates UpdateKubeconfigOptions
func (o *UpdateKubeconfigOptions) Validate() error {
	if len(o.KubeConfig) == 0 {
		return fmt.Errorf("kubeconfig is empty")
	}
	if len(o.Server) == 0 {
		return fmt.Errorf("server is empty")
	}
	if o.Verify && o.VerifyTimeout <= 0 {
		return fmt.Errorf("verify-timeout must be positive")
	}

	return nil
}

// AddFlags returns flags for update-kubeconfig
func (o *UpdateKubeconfigOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.KubeConfig, "kubeconfig", o.KubeConfig, "the kubeconfig file to rewrite")
	fs.StringVar(&o.Server, "server", o.Server, "the api server url written to every cluster")
	fs.BoolVar(&o.Verify, "verify", o.Verify, "load the rewritten file and check /livez of the new server.")
	fs.DurationVar(&o.VerifyTimeout, "verify-timeout", o.VerifyTimeout, "timeout of the /livez check")
	fs.BoolVar(&o.Create, "create", o.Create, "write a minimal kubeconfig pointing at --server when the file does not exist.")
	fs.BoolVar(&o.Version, "version", o.Version, "print the version information.")
}
