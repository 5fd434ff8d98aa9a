// Package main provides the bpgrad CLI: belief propagation runs, gradient
// checks and training on small built-in factor graphs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. klog flags (-v, -logtostderr, ...)
// are registered as persistent flags.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bpgrad",
		Short:         "Differentiable belief propagation over factor graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	root.PersistentFlags().AddGoFlagSet(fs)

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "bpgrad %s\n", version)
			},
		},
		newChainCmd(),
		newDepTreeCmd(),
		newGradCheckCmd(),
		newTrainCmd(),
	)
	return root
}
