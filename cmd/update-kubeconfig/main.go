package main

import (
	"flag"

	"k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/update-kubeconfig/app"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()
	cmd := app.NewCmdUpdateKubeconfig(server.SetupSignalContext())
	cmd.Flags().AddGoFlagSet(flag.CommandLine)
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
