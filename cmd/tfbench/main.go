package main

import (
	"k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/cmd/tfbench/app"
)

func main() {
	defer klog.Flush()
	cmd := app.NewCmdBenchMark(server.SetupSignalContext())
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
