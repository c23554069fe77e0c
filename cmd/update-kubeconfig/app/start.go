package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/update-kubeconfig/app/config"
	"github.com/carv-ics-forth/tfserving-bench/cmd/update-kubeconfig/app/options"
	"github.com/carv-ics-forth/tfserving-bench/pkg/kubeconfig"
	"github.com/carv-ics-forth/tfserving-bench/pkg/projectinfo"
)

// NewCmdUpdateKubeconfig creates a *cobra.Command object with default parameters
func NewCmdUpdateKubeconfig(ctx context.Context) *cobra.Command {
	updateOptions := options.NewUpdateKubeconfigOptions()

	cmd := &cobra.Command{
		Use:   projectinfo.GetKubeconfigToolName(),
		Short: "Point every cluster of a kubeconfig at a new api server",
		Long:  "Rewrite clusters[*].cluster.server of a kubeconfig file in place",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if updateOptions.Version {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %#v\n", projectinfo.GetKubeconfigToolName(), projectinfo.Get())
				return
			}

			cmd.Flags().VisitAll(func(flag *pflag.Flag) {
				klog.V(1).Infof("FLAG: --%s=%q", flag.Name, flag.Value)
			})
			if err := updateOptions.Validate(); err != nil {
				klog.Fatalf("validate options: %v", err)
			}

			cfg, err := config.Complete(updateOptions)
			if err != nil {
				klog.Fatalf("complete %s configuration error, %v", projectinfo.GetKubeconfigToolName(), err)
			}

			if err := Run(ctx, cfg, cmd.OutOrStdout()); err != nil {
				klog.Fatalf("run %s failed, %v", projectinfo.GetKubeconfigToolName(), err)
			}
		},
	}

	updateOptions.AddFlags(cmd.Flags())
	return cmd
}

// Run rewrites the kubeconfig of cfg and verifies it when asked to.
// A missing file is reported and is not an error.
func Run(ctx context.Context, cfg *config.UpdateKubeconfigConfiguration, out io.Writer) error {
	server := cfg.Server.String()
	if _, err := os.Stat(cfg.KubeConfigPath); os.IsNotExist(err) {
		if !cfg.Create {
			fmt.Fprintf(out, "File %s does not exist.\n", cfg.KubeConfigPath)
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(cfg.KubeConfigPath), 0755); err != nil {
			return err
		}
		if err := kubeconfig.GenerateFile(cfg.KubeConfigPath, server); err != nil {
			return fmt.Errorf("create %s, %w", cfg.KubeConfigPath, err)
		}
		fmt.Fprintf(out, "Kubeconfig created with server URL: %s\n", server)
	} else {
		updated, err := kubeconfig.UpdateServerFile(cfg.KubeConfigPath, server)
		if errors.Is(err, kubeconfig.ErrNoClusters) {
			klog.Warningf("%s has no clusters, nothing rewritten", cfg.KubeConfigPath)
		} else if err != nil {
			return err
		}
		klog.V(1).Infof("%d clusters rewritten in %s", updated, cfg.KubeConfigPath)
		fmt.Fprintf(out, "Kubeconfig updated with server URL: %s\n", server)
	}

	if klog.V(1).Enabled() {
		servers, err := kubeconfig.Servers(cfg.KubeConfigPath)
		if err != nil {
			klog.Warningf("could not read back %s, %v", cfg.KubeConfigPath, err)
		} else {
			klog.Infof("servers in %s: %v", cfg.KubeConfigPath, servers)
		}
	}

	if !cfg.Verify {
		return nil
	}
	if err := kubeconfig.Verify(ctx, cfg.KubeConfigPath, cfg.VerifyTimeout); err != nil {
		return fmt.Errorf("verify %s, %w", cfg.KubeConfigPath, err)
	}
	klog.Infof("%s verified against %s", cfg.KubeConfigPath, server)
	return nil
}
