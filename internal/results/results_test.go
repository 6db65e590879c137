package results

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/ostracism-lab/internal/session"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, bom), "file should start with a BOM")
	require.Equal(t, 1, bytes.Count(data, bom), "BOM should be written once")
	rows, err := csv.NewReader(bytes.NewReader(data[len(bom):])).ReadAll()
	require.NoError(t, err)
	return rows
}

var stamp = time.Date(2025, 3, 14, 9, 30, 5, 123_000_000, time.Local)

func TestAppendSummaryWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment_data.csv")
	first := Summary{SubjectID: "1601", ConditionGroup: "Cyber1_Ext_defensive_high", Timestamp: stamp, Investment: 7, Endowment: 10}
	second := Summary{SubjectID: "1600", ConditionGroup: "Cyber1_Ext_neutral_high", Timestamp: stamp.Add(time.Hour), Investment: 0, Endowment: 10}
	require.NoError(t, AppendSummary(path, first, time.Second))
	require.NoError(t, AppendSummary(path, second, time.Second))

	rows := readCSV(t, path)
	assert.Equal(t, [][]string{
		SummaryHeader,
		{"1601", "Cyber1_Ext_defensive_high", "2025-03-14 09:30:05", "7", "10"},
		{"1600", "Cyber1_Ext_neutral_high", "2025-03-14 10:30:05", "0", "10"},
	}, rows)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\r\n")
}

func TestWriteDetailOverwritesAndFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key_logs_7.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	records := []session.Record{
		{Scene: "ID_Input", Timestamp: stamp, ReactionTimeMs: 812, Key: "RETURN", Note: "Confirm: 7"},
		{Scene: "PGG_Game", Timestamp: stamp.Add(2 * time.Second), ReactionTimeMs: 40, Key: "5", Note: "Type: 5"},
	}
	require.NoError(t, WriteDetail(path, records, false))

	rows := readCSV(t, path)
	assert.Equal(t, [][]string{
		DetailHeader,
		{"ID_Input", "09:30:05.123", "812", "RETURN", "Confirm: 7"},
		{"PGG_Game", "09:30:07.123", "40", "5", "Type: 5"},
	}, rows)
}

func TestWriteDetailSubjectColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reaction_times_1601.csv")
	records := []session.Record{{SubjectID: "1601", Scene: "Necessity_Manip", Timestamp: stamp, ReactionTimeMs: 3, Key: "SPACE", Note: "Condition: High"}}
	require.NoError(t, WriteDetail(path, records, true))
	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "Subject_ID", rows[0][0])
	assert.Equal(t, []string{"1601", "Necessity_Manip", "09:30:05.123", "3", "SPACE", "Condition: High"}, rows[1])
}

func TestWriteDetailEmptyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key_logs_x.csv")
	require.NoError(t, WriteDetail(path, nil, false))
	assert.Equal(t, [][]string{DetailHeader}, readCSV(t, path))
}

func TestSaveIsBestEffort(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	store := &Store{SummaryPath: filepath.Join(blocker, "experiment_data.csv"), LockTimeout: time.Second}
	detail := filepath.Join(dir, "key_logs_1.csv")

	report := store.Save(Summary{SubjectID: "1", Timestamp: stamp, Endowment: 10}, nil, detail)
	assert.Error(t, report.SummaryErr)
	assert.NoError(t, report.DetailErr)
	assert.Error(t, report.Err())
	_, err := os.Stat(detail)
	assert.NoError(t, err, "detail must be written even when the summary fails")
}

func TestSummaryLockContention(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are unix only")
	}
	path := filepath.Join(t.TempDir(), "experiment_data.csv")
	release, err := acquireLock(path+".lock", time.Second)
	require.NoError(t, err)

	err = AppendSummary(path, Summary{SubjectID: "1", Timestamp: stamp}, 150*time.Millisecond)
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)

	release()
	require.NoError(t, AppendSummary(path, Summary{SubjectID: "1", Timestamp: stamp}, time.Second))
	assert.Len(t, readCSV(t, path), 2)
}
