package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"incident-pipeline/internal/model"
	"iter"
	"os"
	"path/filepath"
)

// ExportSummary reports what a sink wrote.
type ExportSummary struct {
	Path        string `json:"path"`
	RowsWritten int64  `json:"rows_written"`
	RowsSkipped int64  `json:"rows_skipped"`
}

// Sink streams normalized rows into a CSV file. The file is truncated on
// open, so each run starts from an empty file.
//
// Records end in CRLF. Newlines inside quoted fields are written untouched,
// which csv.Writer.UseCRLF does not do.
type Sink struct {
	path    string
	file    *os.File
	out     *bufio.Writer
	scratch bytes.Buffer
	writer  *csv.Writer
	summary ExportSummary
	closed  bool
}

// NewSink creates (or truncates) path and writes header as the first line.
func NewSink(path string, header []string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	s := &Sink{
		path:    path,
		file:    file,
		out:     bufio.NewWriter(file),
		summary: ExportSummary{Path: path},
	}
	s.writer = csv.NewWriter(&s.scratch)
	s.writer.Comma = ','

	if err := s.writeRecord(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return s, nil
}

// Write appends one row, or counts the record as skipped.
func (s *Sink) Write(res model.Result) error {
	if !res.OK() {
		s.summary.RowsSkipped++
		return nil
	}
	if err := s.writeRecord(res.Row.Values()); err != nil {
		return fmt.Errorf("failed to write row %s: %w", res.Row.ID, err)
	}
	s.summary.RowsWritten++
	return nil
}

func (s *Sink) writeRecord(fields []string) error {
	s.scratch.Reset()
	if err := s.writer.Write(fields); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	line := bytes.TrimSuffix(s.scratch.Bytes(), []byte("\n"))
	if _, err := s.out.Write(line); err != nil {
		return err
	}
	_, err := s.out.WriteString("\r\n")
	return err
}

// WriteAll drains results into the file, stopping at the first error.
func (s *Sink) WriteAll(results iter.Seq2[model.Result, error]) error {
	for res, err := range results {
		if err != nil {
			return err
		}
		if err := s.Write(res); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes buffered rows and closes the file. It is safe to call more
// than once; only the first call does anything.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.out.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush %s: %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, closeErr)
	}
	return nil
}

// Summary returns the counts so far.
func (s *Sink) Summary() ExportSummary {
	return s.summary
}
