package pipeline

import (
	"incident-pipeline/internal/model"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder persists run history. *store.Store satisfies it.
type Recorder interface {
	SaveRun(run model.Run) error
	UpdateRun(run model.Run) error
	SavePollEvent(ev model.PollEvent) error
}

// RunTracker keeps the history entry for one fetch or upload run current.
// Recording failures are logged and never fail the run itself.
type RunTracker struct {
	rec    Recorder
	logger *slog.Logger
	clock  func() time.Time

	mu  sync.Mutex
	run model.Run
}

// NewRunTracker starts tracking a run. rec may be nil, in which case the
// tracker only keeps the run in memory.
func NewRunTracker(rec Recorder, kind model.RunKind, source, outputPath string, logger *slog.Logger) *RunTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunTracker{
		rec:    rec,
		logger: logger,
		clock:  time.Now,
		run: model.Run{
			ID:         uuid.New().String(),
			Kind:       kind,
			Source:     source,
			OutputPath: outputPath,
			Status:     model.RunStatusRunning,
		},
	}
}

// ID returns the run identifier.
func (t *RunTracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.ID
}

// Start stamps the start time and saves the running entry.
func (t *RunTracker) Start(startedAt time.Time) {
	t.mu.Lock()
	t.run.StartedAt = startedAt.UTC()
	run := t.run
	t.mu.Unlock()

	if t.rec == nil {
		return
	}
	if err := t.rec.SaveRun(run); err != nil {
		t.logger.Warn("failed to save run", "run_id", run.ID, "error", err)
	}
}

// Update applies fn to the tracked run and persists the result.
func (t *RunTracker) Update(fn func(run *model.Run)) {
	t.mu.Lock()
	fn(&t.run)
	run := t.run
	t.mu.Unlock()

	t.persist(run)
}

// Complete marks the run completed.
func (t *RunTracker) Complete() {
	t.finish(model.RunStatusCompleted, nil)
}

// Fail marks the run failed with err.
func (t *RunTracker) Fail(err error) {
	t.finish(model.RunStatusFailed, err)
}

// Run returns a copy of the tracked entry.
func (t *RunTracker) Run() model.Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run
}

// ObservePoll records one job status poll against this run.
func (t *RunTracker) ObservePoll(seq, httpStatus int, status model.ProcessingStatus, elapsed time.Duration) {
	if t.rec == nil {
		return
	}
	ev := model.PollEvent{
		RunID:            t.ID(),
		Seq:              seq,
		HTTPStatus:       httpStatus,
		ProcessingStatus: string(status),
		Elapsed:          elapsed,
		At:               t.clock().UTC(),
	}
	if err := t.rec.SavePollEvent(ev); err != nil {
		t.logger.Warn("failed to save poll event", "run_id", ev.RunID, "seq", seq, "error", err)
	}
}

func (t *RunTracker) finish(status string, err error) {
	t.mu.Lock()
	now := t.clock().UTC()
	t.run.Status = status
	t.run.FinishedAt = &now
	if err != nil {
		t.run.Error = err.Error()
	}
	run := t.run
	t.mu.Unlock()

	t.persist(run)
}

func (t *RunTracker) persist(run model.Run) {
	if t.rec == nil {
		return
	}
	if err := t.rec.UpdateRun(run); err != nil {
		t.logger.Warn("failed to update run", "run_id", run.ID, "error", err)
	}
}
