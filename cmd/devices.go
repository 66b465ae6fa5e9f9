package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/cwbudde/clsquare/internal/compute"
	"github.com/cwbudde/clsquare/internal/compute/device"
	"github.com/cwbudde/clsquare/internal/compute/opencl"
	"github.com/spf13/cobra"
)

var (
	devicesBackend     string
	devicesHostDevices int
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute platforms and devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(cmd.OutOrStdout(), devicesBackend, devicesHostDevices)
	},
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", string(compute.BackendOpenCL), "Compute backend: opencl, host, blackcl")
	devicesCmd.Flags().IntVar(&devicesHostDevices, "host-devices", 1, "Number of simulated devices for the host backend")
	rootCmd.AddCommand(devicesCmd)
}

func listDevices(out io.Writer, backendName string, hostDevices int) error {
	if compute.NormalizeBackend(backendName) == compute.BackendOpenCL {
		platforms, err := opencl.EnumeratePlatforms()
		if errors.Is(err, opencl.ErrNotBuilt) {
			fmt.Fprintln(out, "OpenCL support not compiled in; rebuild with '-tags gpu'.")
			return nil
		}
		if errors.Is(err, opencl.ErrNoDevices) {
			return printPlatforms(out, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to enumerate platforms: %w", err)
		}
		return printPlatforms(out, platforms)
	}

	backend, err := compute.NewBackend(backendName, compute.BackendOptions{HostDevices: hostDevices})
	if err != nil {
		return err
	}
	ctx, err := backend.CreateContext(device.TypeAll)
	if err != nil {
		return fmt.Errorf("failed to open %s devices: %w", backend.Name(), err)
	}
	defer func() {
		if err := ctx.Release(); err != nil {
			slog.Warn("Failed to release context", "backend", backend.Name(), "error", err)
		}
	}()

	return printPlatforms(out, []device.PlatformInfo{{
		Name:    backend.Name(),
		Vendor:  "clsquare",
		Devices: ctx.Devices(),
	}})
}

func printPlatforms(out io.Writer, platforms []device.PlatformInfo) error {
	if len(platforms) == 0 {
		fmt.Fprintln(out, "No platforms found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tDEVICE\tNAME\tTYPE\tCOMPUTE UNITS\tMAX WORK GROUP")
	fmt.Fprintln(w, "--------\t------\t----\t----\t-------------\t--------------")

	total := 0
	for _, p := range platforms {
		if len(p.Devices) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", p.Name)
			continue
		}
		for i, d := range p.Devices {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\n", p.Name, i, d.Name, d.Type, d.MaxComputeUnits, d.MaxWorkGroupSize)
			total++
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal devices: %d\n", total)
	return nil
}
