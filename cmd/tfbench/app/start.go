package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/tfbench/app/config"
	"github.com/carv-ics-forth/tfserving-bench/cmd/tfbench/app/options"
	"github.com/carv-ics-forth/tfserving-bench/pkg/benchmark"
	"github.com/carv-ics-forth/tfserving-bench/pkg/projectinfo"
	"github.com/carv-ics-forth/tfserving-bench/pkg/server"
)

// NewCmdBenchMark creates a *cobra.Command object with default parameters
func NewCmdBenchMark(ctx context.Context) *cobra.Command {
	benchMarkOptions := options.NewBenchmarkOptions()

	cleanFlagSet := pflag.NewFlagSet(projectinfo.GetBenchName(), pflag.ContinueOnError)

	cmd := &cobra.Command{
		Use:                projectinfo.GetBenchName() + " [flags] <requests>",
		Long:               "Benchmark the TensorFlow Serving REST predict API with <requests> sequential requests per iteration.",
		DisableFlagParsing: true,
		Run: func(cmd *cobra.Command, args []string) {
			// initial flag parse, since we disable cobra's flag parsing
			if err := cleanFlagSet.Parse(args); err != nil {
				cmd.Usage()
				klog.Fatal(err)
			}

			// short-circuit on help
			help, err := cleanFlagSet.GetBool("help")
			if err != nil {
				klog.Fatal(`"help" flag is non-bool, programmer error, please correct`)
			}
			if help {
				cmd.Help()
				return
			}

			if err := benchMarkOptions.ParseRequests(cleanFlagSet.Args()); err != nil {
				cmd.Usage()
				klog.Fatal(err)
			}

			klog.V(2).Infof("BenchMark Config: %#v", *benchMarkOptions)
			klog.Infof("Version:%#v", projectinfo.Get())

			if err := benchMarkOptions.Validate(); err != nil {
				klog.Fatal(err)
			}

			runCtx, cancel := context.WithTimeout(ctx, time.Duration(benchMarkOptions.TimeOut)*time.Second)
			defer cancel()

			cfg, err := config.Complete(benchMarkOptions)
			if err != nil {
				klog.Fatalf("complete %s configuration error, %v", projectinfo.GetBenchName(), err)
			}
			cfg.Out = cmd.OutOrStdout()

			if err := Run(runCtx, cfg); err != nil {
				klog.Fatal(err)
			}
		},
	}

	// keep cleanFlagSet separate, so Cobra doesn't pollute it with the global flags
	benchMarkOptions.AddFlags(cleanFlagSet)
	options.AddGlobalFlags(cleanFlagSet)
	cleanFlagSet.BoolP("help", "h", false, fmt.Sprintf("help for %s", cmd.Name()))

	// ugly, but necessary, because Cobra's default UsageFunc and HelpFunc pollute the flagset with global flags
	const usageFmt = "Usage:\n  %s\n\nFlags:\n%s"
	cmd.SetUsageFunc(func(cmd *cobra.Command) error {
		fmt.Fprintf(cmd.OutOrStderr(), usageFmt, cmd.UseLine(), cleanFlagSet.FlagUsagesWrapped(2))
		return nil
	})
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n"+usageFmt, cmd.Long, cmd.UseLine(), cleanFlagSet.FlagUsagesWrapped(2))
	})

	return cmd
}

// Run runs the benchmark described by cfg and returns when every sub benchmark finished
func Run(ctx context.Context, cfg *config.BenchmarkConfiguration) error {
	trace := 1
	if cfg.StubAddr != "" {
		klog.Infof("%d. start stub server on %s", trace, cfg.StubAddr)
		server.NewStubServer(cfg.StubAddr, cfg.Metrics.Handler()).Run(ctx)
		trace++
	}

	klog.Infof("%d. new benchmark %s against %s, run %s", trace, cfg.BenchType, cfg.PredictURL, cfg.RunID)
	b, err := benchmark.NewBenchMark(cfg)
	if err != nil {
		return fmt.Errorf("could not create benchmark, %w", err)
	}
	trace++

	klog.Infof("%d. run %d sub benchmarks", trace, len(b.SubBenchMarkers))
	return b.Run(ctx)
}
