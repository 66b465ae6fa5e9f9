package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/clsquare/internal/compute"
	"github.com/cwbudde/clsquare/internal/compute/device"
	"github.com/spf13/pflag"
)

// pipelineOptions are the flags shared by run and check.
type pipelineOptions struct {
	backend     string
	deviceType  string
	count       int
	entry       string
	kernelFile  string
	seed        int64
	absTol      float64
	relTol      float64
	policy      string
	hostDevices int
	reportDir   string
}

func defaultPipelineOptions() pipelineOptions {
	return pipelineOptions{
		backend:     string(compute.BackendOpenCL),
		deviceType:  "gpu",
		count:       compute.DefaultCount,
		entry:       compute.DefaultEntryPoint,
		seed:        compute.DefaultSeed,
		absTol:      compute.DefaultAbsTolerance,
		relTol:      compute.DefaultRelTolerance,
		policy:      string(compute.PolicyReplicate),
		hostDevices: 1,
	}
}

func (o *pipelineOptions) bindTarget(fs *pflag.FlagSet) {
	fs.StringVar(&o.backend, "backend", o.backend, "Compute backend: opencl, host, blackcl")
	fs.StringVar(&o.deviceType, "device-type", o.deviceType, "Device class: gpu, cpu, accelerator, default, all")
	fs.StringVar(&o.entry, "entry", o.entry, "Kernel entry point to extract")
	fs.StringVar(&o.kernelFile, "kernel-file", "", "Read OpenCL C source from this file instead of the built-in square kernel")
	fs.IntVar(&o.hostDevices, "host-devices", o.hostDevices, "Number of simulated devices for the host backend")
}

func (o *pipelineOptions) bindRun(fs *pflag.FlagSet) {
	o.bindTarget(fs)
	fs.IntVar(&o.count, "count", o.count, "Number of elements")
	fs.Int64Var(&o.seed, "seed", o.seed, "Random seed for the input values")
	fs.Float64Var(&o.absTol, "abs-tol", o.absTol, "Absolute tolerance when comparing results")
	fs.Float64Var(&o.relTol, "rel-tol", o.relTol, "Relative tolerance when comparing results")
	fs.StringVar(&o.policy, "policy", o.policy, "Work partition across devices: replicate, split")
	fs.StringVar(&o.reportDir, "report-dir", "", "Directory for run reports and stage traces (disabled when empty)")
}

// config turns the flags into a validated pipeline config.
func (o pipelineOptions) config() (compute.Config, error) {
	cfg := compute.DefaultConfig()

	typ, err := device.ParseType(o.deviceType)
	if err != nil {
		return cfg, err
	}
	policy, err := compute.ParsePolicy(o.policy)
	if err != nil {
		return cfg, err
	}

	cfg.DeviceType = typ
	cfg.Policy = policy
	cfg.Count = o.count
	cfg.EntryPoint = o.entry
	cfg.Seed = o.seed
	cfg.AbsTolerance = o.absTol
	cfg.RelTolerance = o.relTol

	if o.kernelFile != "" {
		src, err := os.ReadFile(o.kernelFile)
		if err != nil {
			return cfg, fmt.Errorf("failed to read kernel file: %w", err)
		}
		cfg.KernelSource = string(src)
	}

	return cfg, cfg.Validate()
}

// newBackend builds the selected backend. Simulated host devices report the
// requested class so every concrete class can be exercised without hardware.
func (o pipelineOptions) newBackend(class device.Type) (compute.Backend, error) {
	hostType := device.TypeCPU
	switch class {
	case device.TypeGPU, device.TypeCPU, device.TypeAccelerator:
		hostType = class
	}
	return compute.NewBackend(o.backend, compute.BackendOptions{
		HostDevices:    o.hostDevices,
		HostDeviceType: hostType,
	})
}

// printFailure writes the stage diagnostic for err to w and marks it reported.
func printFailure(w io.Writer, err error) error {
	var se *compute.StageError
	switch {
	case errors.As(err, &se) && se.Device >= 0:
		fmt.Fprintf(w, "Error during %s (device %d): %v\n", se.Stage, se.Device, se.Err)
	case errors.As(err, &se):
		fmt.Fprintf(w, "Error during %s: %v\n", se.Stage, se.Err)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return &reportedError{err: err}
}

func configFailure(err error) error {
	return &compute.StageError{Stage: compute.StageConfig, Device: -1, Err: err}
}
