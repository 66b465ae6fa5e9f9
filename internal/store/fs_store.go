package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

const reportFile = "report.json"

// FSStore implements Store on the filesystem. Reports live under
// <baseDir>/runs/<runID>/report.json, next to the run's trace.jsonl.
//
// Writes go through a temp file and a rename, so readers never observe a
// partially written report.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store rooted at baseDir, creating the
// directory if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the store root.
func (s *FSStore) BaseDir() string {
	return s.baseDir
}

func runDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID)
}

func (s *FSStore) reportPath(runID string) string {
	return filepath.Join(runDir(s.baseDir, runID), reportFile)
}

// SaveReport atomically saves the report for runID after validating it.
func (s *FSStore) SaveReport(runID string, report *Report) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if report.RunID != runID {
		return fmt.Errorf("report run ID %q does not match %q", report.RunID, runID)
	}
	if err := report.Validate(); err != nil {
		return err
	}

	dir := runDir(s.baseDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	finalPath := s.reportPath(runID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp report file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename report file: %w", err)
	}

	slog.Debug("Report saved", "runID", runID, "path", finalPath)
	return nil
}

// LoadReport reads the report for runID.
func (s *FSStore) LoadReport(runID string) (*Report, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := s.reportPath(runID)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to deserialize report: %w", err)
	}

	slog.Debug("Report loaded", "runID", runID, "path", path)
	return &report, nil
}

// ListReports returns metadata for every readable report, oldest first.
// Run directories without a report, or with a corrupt one, are skipped.
func (s *FSStore) ListReports() ([]ReportInfo, error) {
	runsDir := filepath.Join(s.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []ReportInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []ReportInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		report, err := s.LoadReport(runID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("Failed to load report for listing", "runID", runID, "error", err)
			continue
		}
		infos = append(infos, report.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.Before(infos[j].Timestamp)
	})

	slog.Debug("Listed reports", "count", len(infos))
	return infos, nil
}

// DeleteReport removes the run directory with its report and trace.
func (s *FSStore) DeleteReport(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	dir := runDir(s.baseDir, runID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Report deleted", "runID", runID, "path", dir)
	return nil
}
