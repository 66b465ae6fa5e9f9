package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/clsquare/internal/compute"
	"github.com/cwbudde/clsquare/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostOptions(t *testing.T) pipelineOptions {
	t.Helper()
	opts := defaultPipelineOptions()
	opts.backend = "host"
	opts.count = 1000
	opts.reportDir = t.TempDir()
	return opts
}

func onlyReport(t *testing.T, dir string) *store.Report {
	t.Helper()
	s, err := store.NewFSStore(dir)
	require.NoError(t, err)
	infos, err := s.ListReports()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	r, err := s.LoadReport(infos[0].RunID)
	require.NoError(t, err)
	return r
}

func TestExecuteRunHostSuccess(t *testing.T) {
	opts := hostOptions(t)
	opts.hostDevices = 2

	var out bytes.Buffer
	require.NoError(t, executeRun(opts, &out))

	assert.Contains(t, out.String(), "info: local work group size for device 0 is 256")
	assert.Contains(t, out.String(), "info: local work group size for device 1 is 256")
	assert.Contains(t, out.String(), "Computed '1000/1000' correct values!")

	r := onlyReport(t, opts.reportDir)
	assert.Equal(t, "host", r.Backend)
	assert.Equal(t, "GPU", r.DeviceType)
	assert.Equal(t, 1000, r.Correct)
	assert.Equal(t, 1000, r.Total)
	assert.Empty(t, r.Error)
	require.Len(t, r.Devices, 2)
	assert.Equal(t, 1024, r.Devices[0].GlobalSize)
	assert.Equal(t, 256, r.Devices[0].LocalSize)

	tr, err := store.NewTraceReader(opts.reportDir, r.RunID)
	require.NoError(t, err)
	defer tr.Close()
	entries, err := tr.ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, string(compute.StageContext), entries[0].Stage)
	assert.Equal(t, string(compute.StageValidate), entries[len(entries)-1].Stage)
}

func TestExecuteRunSplitPolicy(t *testing.T) {
	opts := hostOptions(t)
	opts.hostDevices = 3
	opts.policy = "split"

	var out bytes.Buffer
	require.NoError(t, executeRun(opts, &out))
	assert.Contains(t, out.String(), "Computed '1000/1000' correct values!")

	r := onlyReport(t, opts.reportDir)
	assert.Equal(t, "split", r.Policy)
	require.NotEmpty(t, r.Devices)
	assert.Equal(t, 0, r.Devices[0].Offset)
}

func TestExecuteRunKernelNotFound(t *testing.T) {
	opts := hostOptions(t)
	opts.entry = "squareX"

	var out bytes.Buffer
	err := executeRun(opts, &out)
	require.Error(t, err)

	var reported *reportedError
	assert.True(t, errors.As(err, &reported))
	assert.True(t, errors.Is(err, compute.ErrKernelNotFound))
	assert.True(t, strings.HasPrefix(out.String(), "Error during kernel: "), out.String())
	assert.NotContains(t, out.String(), "Computed")

	r := onlyReport(t, opts.reportDir)
	assert.Contains(t, r.Error, "kernel")
	assert.Zero(t, r.Total)
	assert.Equal(t, -1.0, r.MaxAbsError)
}

func TestExecuteRunConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*pipelineOptions)
	}{
		{"bad device type", func(o *pipelineOptions) { o.deviceType = "fpga" }},
		{"bad policy", func(o *pipelineOptions) { o.policy = "scatter" }},
		{"zero count", func(o *pipelineOptions) { o.count = 0 }},
		{"missing kernel file", func(o *pipelineOptions) { o.kernelFile = "/nonexistent/square.cl" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := hostOptions(t)
			tt.modify(&opts)

			var out bytes.Buffer
			err := executeRun(opts, &out)
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(out.String(), "Error during config: "), out.String())

			entries, err := os.ReadDir(opts.reportDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "no report for runs rejected before start")
		})
	}
}

func TestExecuteRunKernelFile(t *testing.T) {
	opts := hostOptions(t)
	opts.reportDir = ""
	opts.kernelFile = filepath.Join(t.TempDir(), "square.cl")
	require.NoError(t, os.WriteFile(opts.kernelFile, []byte(compute.SquareKernelSource), 0644))

	var out bytes.Buffer
	require.NoError(t, executeRun(opts, &out))
	assert.Contains(t, out.String(), "Computed '1000/1000' correct values!")
}

func TestExecuteRunUnknownBackend(t *testing.T) {
	opts := hostOptions(t)
	opts.backend = "vulkan"

	var out bytes.Buffer
	err := executeRun(opts, &out)
	require.ErrorIs(t, err, compute.ErrUnknownBackend)
	assert.True(t, strings.HasPrefix(out.String(), "Error during context: "), out.String())
}

func TestExecuteCheck(t *testing.T) {
	opts := hostOptions(t)
	opts.hostDevices = 2

	var out bytes.Buffer
	require.NoError(t, executeCheck(opts, &out))
	assert.Contains(t, out.String(), "Kernel 'square' built for 2 device(s) on the host backend")
	assert.NotContains(t, out.String(), "Computed")

	opts.entry = "squareX"
	out.Reset()
	err := executeCheck(opts, &out)
	require.ErrorIs(t, err, compute.ErrKernelNotFound)
	assert.True(t, strings.HasPrefix(out.String(), "Error during kernel: "), out.String())
}

func TestPrintFailureDevice(t *testing.T) {
	var out bytes.Buffer
	err := printFailure(&out, &compute.StageError{Stage: compute.StageDispatch, Device: 2, Err: compute.ErrInvalidWorkGroup})

	assert.Equal(t, "Error during dispatch (device 2): compute: invalid work-group size\n", out.String())
	assert.ErrorIs(t, err, compute.ErrInvalidWorkGroup)
}

func TestListDevicesHost(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listDevices(&out, "host", 3))

	assert.Contains(t, out.String(), "host-sim-0")
	assert.Contains(t, out.String(), "host-sim-2")
	assert.Contains(t, out.String(), "Total devices: 3")
}

func TestListDevicesOpenCL(t *testing.T) {
	var out bytes.Buffer
	if err := listDevices(&out, "opencl", 0); err != nil {
		t.Skipf("no OpenCL platform: %v", err)
	}
	assert.NotEmpty(t, out.String())
}
