package upload

import (
	"context"
	"fmt"
	"incident-pipeline/internal/model"
	"incident-pipeline/pkg/utils"
	"log/slog"
	"net/http"
	"time"
)

// DefaultPollInterval is the wait between two status polls.
const DefaultPollInterval = 15 * time.Second

// StatusSource returns the current state of an import job. *Client
// satisfies it.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (StatusResponse, error)
}

// PollObserver is told about every poll the poller makes.
type PollObserver interface {
	ObservePoll(seq, httpStatus int, status model.ProcessingStatus, elapsed time.Duration)
}

// Outcome is the terminal disposition of an import job.
type Outcome struct {
	JobID      string                 `json:"job_id"`
	Status     model.ProcessingStatus `json:"status"`
	Log        string                 `json:"log"`
	HTTPStatus int                    `json:"http_status"`
	Polls      int                    `json:"polls"`
	Waits      int                    `json:"waits"`
	Elapsed    time.Duration          `json:"elapsed"`
}

// Succeeded reports whether the job finished as Completed.
func (o Outcome) Succeeded() bool {
	return o.Status == model.StatusCompleted
}

// pollState is where the poller stands after reading one response.
type pollState int

const (
	// statePending: the service answered 202, the job is Submitted or
	// Processing.
	statePending pollState = iota
	// stateTerminal: any other answer carrying a known status.
	stateTerminal
	// stateInvalid: any other answer we cannot classify.
	stateInvalid
)

// classify maps one poll response onto the job state machine. A 202 is
// always pending, even when its body did not decode. Anything else ends polling; its processing_status must
// be in the enumeration or the response is rejected as unexpected.
func classify(resp StatusResponse) (pollState, model.ProcessingStatus, error) {
	status, known := model.ParseStatus(resp.ProcessingStatus)

	if resp.HTTPStatus == http.StatusAccepted {
		return statePending, status, nil
	}
	if resp.DecodeErr != nil {
		return stateInvalid, status, &UnexpectedResponseError{StatusCode: resp.HTTPStatus, Err: resp.DecodeErr}
	}
	if !known {
		return stateInvalid, status, &UnexpectedResponseError{StatusCode: resp.HTTPStatus, Status: resp.ProcessingStatus}
	}
	return stateTerminal, status, nil
}

// Poller waits for an import job to reach a terminal status.
type Poller struct {
	Source   StatusSource
	Interval time.Duration
	Clock    func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	Observer PollObserver
	Logger   *slog.Logger
}

// NewPoller returns a poller with the default interval and real clock.
func NewPoller(src StatusSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		Source:   src,
		Interval: DefaultPollInterval,
		Clock:    time.Now,
		Sleep:    utils.Sleep,
		Logger:   logger,
	}
}

// Wait polls jobID until it leaves Submitted/Processing. Elapsed times are
// measured from runStart. The returned error is non-nil only when polling
// itself failed; a job that finished as Failed is a normal Outcome.
func (p *Poller) Wait(ctx context.Context, jobID string, runStart time.Time) (Outcome, error) {
	out := Outcome{JobID: jobID}
	logger := p.logger().With("import_job_id", jobID)

	for {
		resp, err := p.Source.Status(ctx, jobID)
		if err != nil {
			return out, fmt.Errorf("%w: import job %s: %w", ErrPollFailed, jobID, err)
		}
		out.Polls++
		out.HTTPStatus = resp.HTTPStatus
		out.Elapsed = p.now().Sub(runStart)

		state, status, err := classify(resp)
		if p.Observer != nil {
			p.Observer.ObservePoll(out.Polls, resp.HTTPStatus, status, out.Elapsed)
		}

		switch state {
		case statePending:
			if resp.DecodeErr != nil {
				logger.Warn("undecodable status response",
					"http_status", resp.HTTPStatus,
					"error", resp.DecodeErr,
				)
			}
			logger.Info("upload status",
				"http_status", resp.HTTPStatus,
				"status", status.Label(),
				"elapsed", formatElapsed(out.Elapsed),
			)
			if err := p.sleep(ctx, p.interval()); err != nil {
				return out, fmt.Errorf("%w: import job %s: %w", ErrPollFailed, jobID, err)
			}
			out.Waits++

		case stateTerminal:
			out.Status = status
			out.Log = resp.Log
			logger.Info("final upload status",
				"http_status", resp.HTTPStatus,
				"status", status.Label(),
				"elapsed", formatElapsed(out.Elapsed),
			)
			logger.Info("import log", "log", resp.Log)
			return out, nil

		default:
			logger.Error("unexpected status response", "http_status", resp.HTTPStatus, "error", err)
			return out, err
		}
	}
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultPollInterval
	}
	return p.Interval
}

func (p *Poller) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock()
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return utils.Sleep(ctx, d)
	}
	return p.Sleep(ctx, d)
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// formatElapsed renders a duration the way operators read the upload log.
func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.1f minutes", d.Minutes())
}
