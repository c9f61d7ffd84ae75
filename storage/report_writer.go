package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"salvage-radar/models"
)

// JSONReportWriter persists the run artifact as an indented JSON document.
type JSONReportWriter struct {
	path string
}

func NewJSONReportWriter(path string) *JSONReportWriter {
	return &JSONReportWriter{path: path}
}

// WriteReport replaces the artifact atomically: the document is written to a
// temp file in the same directory and renamed over the target.
func (w *JSONReportWriter) WriteReport(report *models.RunReport) error {
	data, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("report: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("report: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}

// ReadReport loads a previously written run artifact.
func ReadReport(path string) (*models.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read: %w", err)
	}
	var r models.RunReport
	if err := sonic.ConfigStd.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: decode: %w", err)
	}
	return &r, nil
}
