package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mitchellh/go-homedir"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/update-kubeconfig/app/options"
	"github.com/carv-ics-forth/tfserving-bench/pkg/projectinfo"
)

// UpdateKubeconfigConfiguration represents configuration of update-kubeconfig
type UpdateKubeconfigConfiguration struct {
	KubeConfigPath string
	Server         *url.URL
	Verify         bool
	VerifyTimeout  time.Duration
	Create         bool
}

// Complete converts *options.UpdateKubeconfigOptions to *UpdateKubeconfigConfiguration
func Complete(options *options.UpdateKubeconfigOptions) (*UpdateKubeconfigConfiguration, error) {
	path, err := homedir.Expand(options.KubeConfig)
	if err != nil {
		return nil, err
	}

	u, err := parseServer(options.Server)
	if err != nil {
		return nil, err
	}

	cfg := &UpdateKubeconfigConfiguration{
		KubeConfigPath: path,
		Server:         u,
		Verify:         options.Verify,
		VerifyTimeout:  options.VerifyTimeout,
		Create:         options.Create,
	}

	return cfg, nil
}

func parseServer(server string) (*url.URL, error) {
	if server == "" {
		return nil, fmt.Errorf("--server should be set for %s", projectinfo.GetKubeconfigToolName())
	}
	u, err := url.Parse(server)
	if err != nil {
		klog.Errorf("failed to parse server address %s, %v", server, err)
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("server address %s has no scheme", server)
	} else if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("only http and https schemes are supported for server address(%s)", server)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server address %s has no host", server)
	}
	klog.V(2).Infof("%s would write server: %s", projectinfo.GetKubeconfigToolName(), u.String())

	return u, nil
}
