// Package results persists a finished session as CSV: one appended summary
// row in the shared data file and one per-subject keystroke detail file.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/ostracism-lab/internal/session"
)

const (
	SummaryTimeLayout = "2006-01-02 15:04:05"
	DetailTimeLayout  = "15:04:05.000"
)

// bom lets spreadsheet software detect UTF-8 in files holding Chinese notes.
var bom = []byte{0xEF, 0xBB, 0xBF}

var (
	SummaryHeader = []string{"Subject_ID", "Condition_Group", "Timestamp", "PGG_Investment", "Total_Endowment"}
	DetailHeader  = []string{"Scene", "Timestamp", "Reaction_Time_ms", "Key", "Note"}
)

// Summary is one row of the shared data file.
type Summary struct {
	SubjectID      string
	ConditionGroup string
	Timestamp      time.Time
	Investment     int
	Endowment      int
}

func (s Summary) row() []string {
	return []string{
		s.SubjectID,
		s.ConditionGroup,
		s.Timestamp.Format(SummaryTimeLayout),
		strconv.Itoa(s.Investment),
		strconv.Itoa(s.Endowment),
	}
}

// Store writes results for one variant's output settings.
type Store struct {
	SummaryPath   string
	SubjectColumn bool
	LockTimeout   time.Duration
	Logger        *zap.Logger
}

// Report describes what Save managed to write.
type Report struct {
	SummaryPath string
	DetailPath  string
	Rows        int
	SummaryErr  error
	DetailErr   error
}

// Err joins both write errors; nil when everything was saved.
func (r Report) Err() error {
	return errors.Join(r.SummaryErr, r.DetailErr)
}

// Save appends the summary row and writes the detail file. Both writes are
// attempted even if the first fails.
func (s *Store) Save(summary Summary, records []session.Record, detailPath string) Report {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	report := Report{SummaryPath: s.SummaryPath, DetailPath: detailPath, Rows: len(records)}

	report.SummaryErr = AppendSummary(s.SummaryPath, summary, s.LockTimeout)
	if report.SummaryErr != nil {
		logger.Error("summary not saved", zap.String("path", s.SummaryPath), zap.Error(report.SummaryErr))
	} else {
		logger.Info("summary saved", zap.String("path", s.SummaryPath))
	}

	report.DetailErr = WriteDetail(detailPath, records, s.SubjectColumn)
	if report.DetailErr != nil {
		logger.Error("detail log not saved", zap.String("path", detailPath), zap.Error(report.DetailErr))
	} else {
		logger.Info("detail log saved", zap.String("path", detailPath), zap.Int("rows", len(records)))
	}
	return report
}

// AppendSummary appends one row to the shared data file, writing the BOM and
// header first when the file is empty. Concurrent instances serialise on a
// lock file next to the data file.
func AppendSummary(path string, summary Summary, lockTimeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("results: ensure summary dir: %w", err)
	}
	unlock, err := acquireLock(path+".lock", lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("results: open summary: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("results: stat summary: %w", err)
	}
	fresh := info.Size() == 0
	if fresh {
		if _, err := f.Write(bom); err != nil {
			return fmt.Errorf("results: write summary: %w", err)
		}
	}
	w := newWriter(f)
	if fresh {
		_ = w.Write(SummaryHeader)
	}
	_ = w.Write(summary.row())
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("results: write summary: %w", err)
	}
	return nil
}

// WriteDetail replaces the per-subject keystroke file.
func WriteDetail(path string, records []session.Record, subjectColumn bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("results: ensure detail dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("results: create detail: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(bom); err != nil {
		return fmt.Errorf("results: write detail: %w", err)
	}
	w := newWriter(f)
	header := DetailHeader
	if subjectColumn {
		header = append([]string{"Subject_ID"}, DetailHeader...)
	}
	_ = w.Write(header)
	for _, rec := range records {
		row := []string{
			rec.Scene,
			rec.Timestamp.Format(DetailTimeLayout),
			strconv.FormatInt(rec.ReactionTimeMs, 10),
			rec.Key,
			rec.Note,
		}
		if subjectColumn {
			row = append([]string{rec.SubjectID}, row...)
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("results: write detail: %w", err)
	}
	return nil
}

func newWriter(f *os.File) *csv.Writer {
	w := csv.NewWriter(f)
	w.UseCRLF = true
	return w
}
