package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/clsquare/internal/compute"
	"github.com/cwbudde/clsquare/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runOpts = defaultPipelineOptions()

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the square kernel on every device and verify the output",
	Long: `Acquires every device of the requested class, builds the kernel, dispatches the
work to each device, waits for all queues and validates the result read back from the
last device. Exits non-zero on any stage failure or incorrect value.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(runOpts, cmd.OutOrStdout())
	},
}

func init() {
	runOpts.bindRun(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

// executeRun runs the pipeline once, prints its diagnostics to out and, with a
// report directory, persists the report and stage trace.
func executeRun(opts pipelineOptions, out io.Writer) error {
	runID := uuid.NewString()
	started := time.Now()

	cfg, err := opts.config()
	if err != nil {
		return printFailure(out, configFailure(err))
	}

	backend, err := opts.newBackend(cfg.DeviceType)
	if err != nil {
		return printFailure(out, &compute.StageError{Stage: compute.StageContext, Device: -1, Err: err})
	}

	slog.Info("Starting run", "runID", runID, "backend", backend.Name(), "deviceType", cfg.DeviceType,
		"count", cfg.Count, "policy", cfg.Policy)

	pipeline := compute.NewPipeline(backend, cfg, out)

	var trace *store.TraceWriter
	if opts.reportDir != "" {
		trace, err = store.NewTraceWriter(opts.reportDir, runID)
		if err != nil {
			return fmt.Errorf("failed to open stage trace: %w", err)
		}
		defer func() {
			if err := trace.Close(); err != nil {
				slog.Warn("Failed to close stage trace", "runID", runID, "error", err)
			}
		}()
		pipeline.OnStage = func(ev compute.StageEvent) {
			if err := trace.Write(traceEntry(ev)); err != nil {
				slog.Warn("Failed to write stage trace", "runID", runID, "stage", ev.Stage, "error", err)
			}
		}
	}

	result, runErr := pipeline.Run()

	if opts.reportDir != "" {
		if err := saveReport(opts.reportDir, newReport(runID, backend.Name(), cfg, result, runErr, started)); err != nil {
			slog.Error("Failed to save run report", "runID", runID, "error", err)
		} else {
			slog.Info("Run report saved", "runID", runID, "dir", opts.reportDir)
		}
	}

	if runErr != nil {
		return printFailure(out, runErr)
	}

	slog.Info("Run complete", "runID", runID, "elapsed", result.Elapsed)
	return nil
}

func traceEntry(ev compute.StageEvent) store.TraceEntry {
	entry := store.TraceEntry{
		Stage:     string(ev.Stage),
		Device:    -1,
		Duration:  ev.Duration,
		Timestamp: time.Now(),
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
		var se *compute.StageError
		if errors.As(ev.Err, &se) {
			entry.Device = se.Device
		}
	}
	return entry
}

// newReport converts a pipeline outcome to its persisted form. result may be
// nil when setup failed.
func newReport(runID, backend string, cfg compute.Config, result *compute.Result, runErr error, started time.Time) *store.Report {
	report := &store.Report{
		RunID:       runID,
		Backend:     backend,
		DeviceType:  string(cfg.DeviceType),
		EntryPoint:  cfg.EntryPoint,
		Policy:      string(cfg.Policy),
		Count:       cfg.Count,
		Seed:        cfg.Seed,
		MaxAbsError: -1,
		Elapsed:     time.Since(started),
		Timestamp:   started,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	if result == nil {
		return report
	}

	for _, d := range result.Dispatch {
		report.Devices = append(report.Devices, store.DeviceRecord{
			Index:      d.Device,
			Name:       d.Info.Name,
			Vendor:     d.Info.Vendor,
			Type:       string(d.Info.Type),
			Offset:     d.Range.Offset,
			GlobalSize: d.Range.Global,
			LocalSize:  d.Range.Local,
		})
	}
	for _, s := range result.Stages {
		rec := store.StageRecord{Stage: string(s.Stage), Duration: s.Duration}
		if s.Err != nil {
			rec.Error = s.Err.Error()
		}
		report.Stages = append(report.Stages, rec)
	}

	report.Correct = result.Summary.Correct
	report.Total = result.Summary.Total
	if m := result.Summary.MaxAbsError; result.Summary.Total > 0 && !math.IsNaN(m) && !math.IsInf(m, 0) {
		report.MaxAbsError = m
	}
	report.Elapsed = result.Elapsed
	return report
}

func saveReport(dir string, report *store.Report) error {
	reportStore, err := store.NewFSStore(dir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}
	return reportStore.SaveReport(report.RunID, report)
}
