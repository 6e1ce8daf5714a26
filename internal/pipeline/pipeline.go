package pipeline

import (
	"context"
	"fmt"
	"incident-pipeline/internal/model"
	"iter"
	"log/slog"
	"net/http"
	"time"
)

// Options configures one fetch run.
type Options struct {
	Endpoint   string
	Datasource string // defaults to Endpoint
	OutputPath string
	PageSize   int
	PageDelay  time.Duration
	Client     *http.Client
	Sleep      SleepFunc
}

// Report summarizes a finished fetch run.
type Report struct {
	RunID          string        `json:"run_id"`
	Path           string        `json:"path"`
	Pages          int           `json:"pages"`
	RecordsFetched int64         `json:"records_fetched"`
	RowsWritten    int64         `json:"rows_written"`
	RowsSkipped    int64         `json:"rows_skipped"`
	Duration       time.Duration `json:"duration"`
}

// Runner downloads every record from a source, transforms it and writes
// the CSV file. It runs fetch, transform and write on one goroutine.
type Runner struct {
	Fetcher     *Fetcher
	Transformer *Transformer
	OutputPath  string
	Recorder    Recorder
	Logger      *slog.Logger
}

// NewRunner wires a fetcher and transformer from opts.
func NewRunner(opts Options, rec Recorder, logger *slog.Logger) (*Runner, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("source endpoint is required")
	}
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	datasource := opts.Datasource
	if datasource == "" {
		datasource = opts.Endpoint
	}
	transformer, err := NewTransformer(datasource)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(opts.Endpoint)
	if opts.PageSize > 0 {
		fetcher.PageSize = opts.PageSize
	}
	if opts.PageDelay > 0 {
		fetcher.PageDelay = opts.PageDelay
	}
	if opts.Client != nil {
		fetcher.Client = opts.Client
	}
	if opts.Sleep != nil {
		fetcher.Sleep = opts.Sleep
	}
	fetcher.Logger = logger

	return &Runner{
		Fetcher:     fetcher,
		Transformer: transformer,
		OutputPath:  opts.OutputPath,
		Recorder:    rec,
		Logger:      logger,
	}, nil
}

// ------------------- Pipeline Runner -------------------

// Run executes one fetch run. Skipped records are counted; any fetch or
// write failure aborts the run and leaves whatever was written on disk.
func (r *Runner) Run(ctx context.Context) (report Report, err error) {
	start := time.Now()
	tracker := NewRunTracker(r.Recorder, model.RunKindFetch, r.Fetcher.Endpoint, r.OutputPath, r.Logger)
	tracker.Start(start)
	report = Report{RunID: tracker.ID(), Path: r.OutputPath}

	logger := r.Logger.With("run_id", report.RunID)
	logger.Info("downloading data", "endpoint", r.Fetcher.Endpoint, "output", r.OutputPath)

	defer func() {
		stats := r.Fetcher.Stats()
		report.Pages = stats.Pages
		report.RecordsFetched = stats.Records
		report.Duration = time.Since(start)

		tracker.Update(func(run *model.Run) {
			run.Pages = report.Pages
			run.RecordsFetched = report.RecordsFetched
			run.RowsWritten = report.RowsWritten
			run.RowsSkipped = report.RowsSkipped
		})
		if err != nil {
			tracker.Fail(err)
			logger.Error("fetch run failed", "error", err, "rows_written", report.RowsWritten)
			return
		}
		tracker.Complete()
		logger.Info("fetch run complete",
			"pages", report.Pages,
			"records", report.RecordsFetched,
			"rows_written", report.RowsWritten,
			"rows_skipped", report.RowsSkipped,
			"duration", report.Duration.Round(time.Millisecond),
		)
	}()

	sink, err := NewSink(r.OutputPath, model.Header)
	if err != nil {
		return report, err
	}

	writeErr := sink.WriteAll(r.results(ctx, logger))
	closeErr := sink.Close()

	summary := sink.Summary()
	report.RowsWritten = summary.RowsWritten
	report.RowsSkipped = summary.RowsSkipped

	if writeErr != nil {
		return report, writeErr
	}
	return report, closeErr
}

// results transforms fetched records lazily, one page at a time.
func (r *Runner) results(ctx context.Context, logger *slog.Logger) iter.Seq2[model.Result, error] {
	return func(yield func(model.Result, error) bool) {
		for rec, err := range r.Fetcher.Records(ctx) {
			if err != nil {
				yield(model.Result{}, err)
				return
			}
			res := r.Transformer.Apply(rec)
			if !res.OK() {
				logger.Debug("skipping record", "item", res.Skipped.ItemID, "reason", res.Skipped.Reason)
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}
