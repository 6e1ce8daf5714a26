package model

import "time"

// RunKind distinguishes the two phases a run can record.
type RunKind string

const (
	RunKindFetch  RunKind = "fetch"
	RunKindUpload RunKind = "upload"
)

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is the history entry for one fetch or upload phase
type Run struct {
	ID             string     `json:"id"`
	Kind           RunKind    `json:"kind"`
	Source         string     `json:"source"`
	OutputPath     string     `json:"output_path"`
	Status         string     `json:"status"`
	Pages          int        `json:"pages"`
	RecordsFetched int64      `json:"records_fetched"`
	RowsWritten    int64      `json:"rows_written"`
	RowsSkipped    int64      `json:"rows_skipped"`
	ImportJobID    string     `json:"import_job_id,omitempty"`
	FinalStatus    string     `json:"final_status,omitempty"`
	Log            string     `json:"log,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// PollEvent is one status poll made while waiting on an import job
type PollEvent struct {
	RunID            string        `json:"run_id"`
	Seq              int           `json:"seq"`
	HTTPStatus       int           `json:"http_status"`
	ProcessingStatus string        `json:"processing_status"`
	Elapsed          time.Duration `json:"elapsed"`
	At               time.Time     `json:"at"`
}
