package main

import (
	"fmt"
	"io"

	"github.com/cwbudde/clsquare/internal/compute"
	"github.com/spf13/cobra"
)

var checkOpts = defaultPipelineOptions()

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Build the kernel for every device without running it",
	Long: `Acquires the devices, creates one queue per device, builds the program and
extracts the entry point. Nothing is staged or dispatched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeCheck(checkOpts, cmd.OutOrStdout())
	},
}

func init() {
	checkOpts.bindTarget(checkCmd.Flags())
	rootCmd.AddCommand(checkCmd)
}

func executeCheck(opts pipelineOptions, out io.Writer) error {
	cfg, err := opts.config()
	if err != nil {
		return printFailure(out, configFailure(err))
	}

	backend, err := opts.newBackend(cfg.DeviceType)
	if err != nil {
		return printFailure(out, &compute.StageError{Stage: compute.StageContext, Device: -1, Err: err})
	}

	result, err := compute.NewPipeline(backend, cfg, out).Check()
	if err != nil {
		return printFailure(out, err)
	}

	fmt.Fprintf(out, "Kernel '%s' built for %d device(s) on the %s backend\n",
		result.Kernel, len(result.Devices), result.Backend)
	for i, d := range result.Devices {
		fmt.Fprintf(out, "  [%d] %s\n", i, d)
	}
	return nil
}
