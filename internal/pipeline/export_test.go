package pipeline

import (
	"errors"
	"incident-pipeline/internal/model"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headerLine = "id,datasource,pointx,pointy,address,datetimefrom,datetimeto,report_time,class,last_updated\r\n"

func row(id, address, class string) model.NormalizedRow {
	return model.NormalizedRow{
		ID:           id,
		Datasource:   "src",
		PointX:       "1",
		PointY:       "2",
		Address:      address,
		DateTimeFrom: "2015-04-01T02:36:00-05:00",
		DateTimeTo:   "2015-04-01T02:36:00-05:00",
		ReportTime:   "2015-04-01T02:36:00-05:00",
		Class:        class,
		LastUpdated:  "2015-04-01T03:05:12-05:00",
	}
}

func results(items ...model.Result) iter.Seq2[model.Result, error] {
	return func(yield func(model.Result, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func TestSinkWritesHeaderAndRowsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.csv")

	sink, err := NewSink(path, model.Header)
	require.NoError(t, err)

	skipped := model.Result{Skipped: &model.SkippedRecord{ItemID: "B", Reason: model.ErrMissingField}}
	err = sink.WriteAll(results(
		model.Result{Row: row("A", "001XX N Broad St, 70119", "THEFT")},
		skipped,
		model.Result{Row: row("C", "002XX Canal St, 70130", "SIMPLE BATTERY")},
	))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)

	want := headerLine +
		`A,src,1,2,"001XX N Broad St, 70119",2015-04-01T02:36:00-05:00,2015-04-01T02:36:00-05:00,2015-04-01T02:36:00-05:00,THEFT,2015-04-01T03:05:12-05:00` + "\r\n" +
		`C,src,1,2,"002XX Canal St, 70130",2015-04-01T02:36:00-05:00,2015-04-01T02:36:00-05:00,2015-04-01T02:36:00-05:00,SIMPLE BATTERY,2015-04-01T03:05:12-05:00` + "\r\n"
	assert.Equal(t, want, string(got))

	assert.Equal(t, ExportSummary{Path: path, RowsWritten: 2, RowsSkipped: 1}, sink.Summary())
}

func TestSinkQuotesOnlyWhenNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")

	sink, err := NewSink(path, model.Header)
	require.NoError(t, err)
	require.NoError(t, sink.Write(model.Result{Row: row("A", "plain", `SAYS "HI"`)}))
	require.NoError(t, sink.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), `,plain,`)
	assert.Contains(t, string(got), `,"SAYS ""HI""",`)
}

func TestSinkKeepsNewlinesInsideFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")

	sink, err := NewSink(path, model.Header)
	require.NoError(t, err)
	require.NoError(t, sink.Write(model.Result{Row: row("A", "plain", "line1\nline2")}))
	require.NoError(t, sink.Write(model.Result{Row: row("B", "plain", "cr\r\nlf")}))
	require.NoError(t, sink.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), ",\"line1\nline2\",2015-04-01T03:05:12-05:00\r\n")
	assert.Contains(t, string(got), ",\"cr\r\nlf\",2015-04-01T03:05:12-05:00\r\n")
	assert.NotContains(t, string(got), "line1\r\n")
}

func TestSinkTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale data from a previous run\n"), 0644))

	sink, err := NewSink(path, model.Header)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(got))
}

func TestSinkStopsOnSequenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	boom := errors.New("boom")

	sink, err := NewSink(path, model.Header)
	require.NoError(t, err)
	defer sink.Close()

	seq := func(yield func(model.Result, error) bool) {
		if !yield(model.Result{Row: row("A", "x", "y")}, nil) {
			return
		}
		if !yield(model.Result{}, boom) {
			return
		}
		t.Error("sequence continued after error")
	}

	err = sink.WriteAll(seq)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), sink.Summary().RowsWritten)
}

func TestNewSinkFailsOnUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := NewSink(filepath.Join(blocker, "events.csv"), model.Header)
	assert.Error(t, err)
}
