package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	TableFile    = "contributions.csv"
	WorkbookFile = "contributions.xlsx"
	ReportFile   = "contributions_data.json"
)

// Writer writes exports into a report directory. Every file is replaced
// atomically so a reader never sees a partial export.
type Writer struct {
	dir    string
	xlsx   bool
	runID  string
	now    func() time.Time
	logger logrus.FieldLogger
}

// Option configures a Writer.
type Option func(*Writer)

// WithWorkbook enables the XLSX export alongside the CSV table.
func WithWorkbook(enabled bool) Option {
	return func(w *Writer) { w.xlsx = enabled }
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithRunID sets the run id instead of generating one.
func WithRunID(id string) Option {
	return func(w *Writer) { w.runID = id }
}

func NewWriter(dir string, logger logrus.FieldLogger, opts ...Option) *Writer {
	w := &Writer{
		dir:    dir,
		runID:  uuid.NewString(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) RunID() string {
	return w.runID
}

func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteTable writes the CSV table, and the workbook when enabled.
func (w *Writer) WriteTable(state *domain.ScanState) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, state); err != nil {
		return fmt.Errorf("failed to encode contributions table: %w", err)
	}
	if err := writeFileAtomic(w.Path(TableFile), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", TableFile, err)
	}

	if w.xlsx {
		if err := os.MkdirAll(w.dir, 0o755); err != nil {
			return err
		}
		if err := WriteWorkbook(w.Path(WorkbookFile), state); err != nil {
			return err
		}
	}
	w.logger.WithFields(logrus.Fields{
		"path":  w.Path(TableFile),
		"users": len(state.Records),
	}).Debug("Contributions table written")
	return nil
}

// WriteReport writes the structured JSON report.
func (w *Writer) WriteReport(state *domain.ScanState, totalRepositories int) error {
	report := BuildReport(state, w.runID, totalRepositories, w.now())
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := writeFileAtomic(w.Path(ReportFile), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", ReportFile, err)
	}
	w.logger.WithFields(logrus.Fields{
		"path":   w.Path(ReportFile),
		"run_id": w.runID,
	}).Info("Report written")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
