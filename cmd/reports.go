package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/clsquare/internal/store"
	"github.com/spf13/cobra"
)

var (
	reportDataDir string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored run reports",
	Long: `Inspect the reports written by 'run --report-dir'. Each run has a report.json
with its outcome and a trace.jsonl with the duration of every stage.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored run reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listReports(cmd.OutOrStdout(), reportDataDir)
	},
}

var showReportCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run report with its stage trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showReport(cmd.OutOrStdout(), reportDataDir, args[0])
	},
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old run reports",
	Long: `Delete old run reports based on retention policy.
You can keep only the newest N reports or delete reports older than N days.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cleanReports(cmd.OutOrStdout(), cmd.InOrStdin(), reportDataDir, keepLast, olderThanDays, forceClean)
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(listReportsCmd, showReportCmd, cleanReportsCmd)

	reportsCmd.PersistentFlags().StringVar(&reportDataDir, "report-dir", "./reports", "Directory holding run reports")

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func listReports(out io.Writer, dir string) error {
	reportStore, err := store.NewFSStore(dir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tBACKEND\tDEVICES\tCORRECT\tELAPSED\tSTATUS\tSIZE")
	fmt.Fprintln(w, "------\t---------\t-------\t-------\t-------\t-------\t------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(filepath.Join(dir, "runs", info.RunID)); err == nil {
			sizeStr = formatBytes(size)
		}

		status := "ok"
		if info.Failed {
			status = "failed"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Backend,
			info.DeviceType,
			info.Correct, info.Total,
			info.Elapsed.Round(time.Microsecond),
			status,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

func showReport(out io.Writer, dir, runID string) error {
	reportStore, err := store.NewFSStore(dir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	r, err := reportStore.LoadReport(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run:         %s\n", r.RunID)
	fmt.Fprintf(out, "Timestamp:   %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Backend:     %s (%s)\n", r.Backend, r.DeviceType)
	fmt.Fprintf(out, "Entry point: %s\n", r.EntryPoint)
	fmt.Fprintf(out, "Count:       %d (seed %d, policy %s)\n", r.Count, r.Seed, r.Policy)
	if r.Total > 0 {
		fmt.Fprintf(out, "Result:      Computed '%d/%d' correct values!\n", r.Correct, r.Total)
	}
	if r.MaxAbsError >= 0 {
		fmt.Fprintf(out, "Max error:   %g\n", r.MaxAbsError)
	}
	fmt.Fprintf(out, "Elapsed:     %s\n", r.Elapsed)
	if r.Error != "" {
		fmt.Fprintf(out, "Error:       %s\n", r.Error)
	}

	if len(r.Devices) > 0 {
		fmt.Fprintln(out, "\nDispatch:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  DEVICE\tNAME\tOFFSET\tGLOBAL\tLOCAL")
		for _, d := range r.Devices {
			fmt.Fprintf(w, "  %d\t%s\t%d\t%d\t%d\n", d.Index, d.Name, d.Offset, d.GlobalSize, d.LocalSize)
		}
		w.Flush()
	}

	tr, err := store.NewTraceReader(dir, runID)
	if err != nil {
		slog.Debug("No stage trace for run", "runID", runID, "error", err)
		return nil
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read stage trace: %w", err)
	}

	fmt.Fprintln(out, "\nStages:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		status := "ok"
		if e.Error != "" {
			status = e.Error
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", e.Stage, e.Duration, status)
	}
	return w.Flush()
}

func cleanReports(out io.Writer, in io.Reader, dir string, keepLast, olderThanDays int, force bool) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	reportStore, err := store.NewFSStore(dir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports to clean.")
		return nil
	}

	toDelete := selectReportsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s)\n", shortID(info.RunID), info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !force {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(in, &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := reportStore.DeleteReport(info.RunID); err != nil {
			slog.Error("Failed to delete report", "runID", info.RunID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted report", "runID", info.RunID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

// selectReportsForDeletion returns reports older than olderThanDays plus every
// report beyond the newest keepLast, each at most once.
func selectReportsForDeletion(infos []store.ReportInfo, keepLast, olderThanDays int, now time.Time) []store.ReportInfo {
	var toDelete []store.ReportInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := append([]store.ReportInfo(nil), infos...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RunID] {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
