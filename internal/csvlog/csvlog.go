// Package csvlog appends heart-rate samples to a per-run CSV file.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chaz8081/hrbridge/internal/heartrate"
)

// FileName returns the log file name for a run started at start.
func FileName(start time.Time) string {
	return start.Format("20060102-150405") + ".csv"
}

// Writer appends "timestamp,bpm" rows, flushing after each one so a killed
// process loses nothing. There is no header row.
type Writer struct {
	path string
	file *os.File
	csv  *csv.Writer
}

// Create opens (or appends to) the log file for a run started at start.
func Create(dir string, start time.Time) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csvlog: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvlog: open %s: %w", path, err)
	}
	return &Writer{path: path, file: f, csv: csv.NewWriter(f)}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string {
	return w.path
}

// Record appends one row for s.
func (w *Writer) Record(s heartrate.Sample) error {
	row := []string{s.At.Format(time.RFC3339Nano), strconv.Itoa(int(s.BPM))}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("csvlog: write: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("csvlog: flush: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.csv.Flush()
	return w.file.Close()
}
