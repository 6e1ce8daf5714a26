package upload

import (
	"context"
	"errors"
	"fmt"
	"incident-pipeline/internal/model"
	"log/slog"
	"os"
	"time"
)

// Exit codes reported by the command line tools for upload outcomes.
const (
	ExitOK           = 0
	ExitUnauthorized = 1
	ExitSubmitFailed = 2
	ExitConfig       = 3
	ExitFileMissing  = 4
	ExitNotCompleted = 5
	ExitUnexpected   = 6
	ExitFetchFailed  = 7
)

var (
	// ErrFileNotFound is returned when the file to upload does not exist.
	ErrFileNotFound = errors.New("upload file not found")

	// ErrNotCompleted is returned when the job ended in any status other
	// than Completed.
	ErrNotCompleted = errors.New("file failed to upload successfully")
)

// JobError reports an import job that reached a terminal status other than
// Completed. Log is the service's import log, unmodified.
type JobError struct {
	JobID  string
	Status model.ProcessingStatus
	Log    string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: import job %s finished as %s", ErrNotCompleted, e.JobID, e.Status.Label())
}

func (e *JobError) Unwrap() error { return ErrNotCompleted }

// ExitCode maps an upload error to the process exit code. Once the upload
// is accepted, any polling failure reports ExitUnexpected.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUnauthorized):
		return ExitUnauthorized
	case errors.Is(err, ErrFileNotFound):
		return ExitFileMissing
	case errors.Is(err, ErrNotCompleted):
		return ExitNotCompleted
	case errors.Is(err, ErrUnexpectedResponse), errors.Is(err, ErrPollFailed):
		return ExitUnexpected
	default:
		return ExitSubmitFailed
	}
}

// Submitter sends a file and returns the import job id. *Client
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, path string) (string, error)
}

// Tracker records the upload against a run. *pipeline.RunTracker
// satisfies it.
type Tracker interface {
	PollObserver
	Update(fn func(run *model.Run))
}

// Uploader submits a file and waits for its import job to finish.
type Uploader struct {
	Submitter Submitter
	Poller    *Poller
	Endpoint  string
	Logger    *slog.Logger
}

// NewUploader wires a client to a poller that asks the same client for
// job status.
func NewUploader(client *Client, interval time.Duration, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	poller := NewPoller(client, logger)
	if interval > 0 {
		poller.Interval = interval
	}
	return &Uploader{
		Submitter: client,
		Poller:    poller,
		Endpoint:  client.Endpoint(),
		Logger:    logger,
	}
}

// Upload submits path and polls until the job is terminal. Elapsed times
// are measured from runStart. tr may be nil. A job that ends in any status
// but Completed returns the Outcome together with a *JobError.
func (u *Uploader) Upload(ctx context.Context, path string, runStart time.Time, tr Tracker) (Outcome, error) {
	logger := u.logger()

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		logger.Error("couldn't find csv file", "path", path)
		return Outcome{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	logger.Info("uploading data", "endpoint", u.Endpoint, "path", path)
	jobID, err := u.Submitter.Submit(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			logger.Error("authentication token not accepted")
		default:
			logger.Error("upload was not accepted", "error", err)
		}
		return Outcome{}, err
	}

	logger.Info("upload accepted", "import_job_id", jobID, "elapsed", formatElapsed(time.Since(runStart)))
	if tr != nil {
		tr.Update(func(run *model.Run) { run.ImportJobID = jobID })
	}

	poller := *u.Poller
	if tr != nil {
		poller.Observer = tr
	}
	out, err := poller.Wait(ctx, jobID, runStart)
	if tr != nil {
		tr.Update(func(run *model.Run) {
			run.FinalStatus = string(out.Status)
			run.Log = out.Log
		})
	}
	if err != nil {
		return out, err
	}

	if !out.Succeeded() {
		logger.Error("file failed to upload successfully", "status", out.Status.Label())
		return out, &JobError{JobID: jobID, Status: out.Status, Log: out.Log}
	}
	return out, nil
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}
