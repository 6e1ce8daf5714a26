package upload

import (
	"bytes"
	"context"
	"errors"
	"incident-pipeline/internal/model"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays responses in order and repeats the last one.
type scriptedSource struct {
	responses []StatusResponse
	err       error
	calls     int
	jobIDs    []string
}

func (s *scriptedSource) Status(_ context.Context, jobID string) (StatusResponse, error) {
	s.jobIDs = append(s.jobIDs, jobID)
	if s.err != nil {
		return StatusResponse{}, s.err
	}
	i := min(s.calls, len(s.responses)-1)
	s.calls++
	return s.responses[i], nil
}

type observed struct {
	seq        int
	httpStatus int
	status     model.ProcessingStatus
	elapsed    time.Duration
}

type observerFunc []observed

func (o *observerFunc) ObservePoll(seq, httpStatus int, status model.ProcessingStatus, elapsed time.Duration) {
	*o = append(*o, observed{seq, httpStatus, status, elapsed})
}

// fakeClock advances by one minute every time a sleep completes.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(time.Minute)
	return nil
}

func pending(code string) StatusResponse {
	return StatusResponse{HTTPStatus: http.StatusAccepted, ProcessingStatus: code}
}

func newTestPoller(src StatusSource) (*Poller, *fakeClock, *observerFunc) {
	clock := &fakeClock{now: time.Date(2015, 4, 1, 2, 0, 0, 0, time.UTC)}
	obs := &observerFunc{}
	p := NewPoller(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.Clock = clock.Now
	p.Sleep = clock.Sleep
	p.Observer = obs
	return p, clock, obs
}

func TestWait_PendingThenCompleted(t *testing.T) {
	src := &scriptedSource{responses: []StatusResponse{
		pending("SUBM"),
		pending("PROC"),
		{HTTPStatus: http.StatusOK, ProcessingStatus: "COMP", Log: "2465 rows imported"},
	}}
	p, clock, obs := newTestPoller(src)
	p.Interval = 15 * time.Second
	runStart := clock.now.Add(-2 * time.Minute)

	out, err := p.Wait(context.Background(), "job-17", runStart)
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Equal(t, model.StatusCompleted, out.Status)
	assert.Equal(t, "2465 rows imported", out.Log)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, 2, out.Waits)
	assert.Equal(t, 4*time.Minute, out.Elapsed)
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second}, clock.sleeps)
	assert.Equal(t, []string{"job-17", "job-17", "job-17"}, src.jobIDs)

	require.Len(t, *obs, 3)
	assert.Equal(t, observed{1, http.StatusAccepted, model.StatusSubmitted, 2 * time.Minute}, (*obs)[0])
	assert.Equal(t, observed{2, http.StatusAccepted, model.StatusProcessing, 3 * time.Minute}, (*obs)[1])
	assert.Equal(t, observed{3, http.StatusOK, model.StatusCompleted, 4 * time.Minute}, (*obs)[2])
}

func TestWait_ImmediateTerminal(t *testing.T) {
	src := &scriptedSource{responses: []StatusResponse{
		{HTTPStatus: http.StatusOK, ProcessingStatus: "COMP"},
	}}
	p, clock, _ := newTestPoller(src)

	out, err := p.Wait(context.Background(), "job-1", clock.now)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Polls)
	assert.Zero(t, out.Waits)
	assert.Empty(t, clock.sleeps)
}

func TestWait_FailedKeepsLogVerbatim(t *testing.T) {
	log := "row 12: invalid datetimefrom\nrow 40: missing class"
	src := &scriptedSource{responses: []StatusResponse{
		pending("PROC"),
		{HTTPStatus: http.StatusOK, ProcessingStatus: "FAIL", Log: log},
	}}
	p, clock, _ := newTestPoller(src)

	out, err := p.Wait(context.Background(), "job-2", clock.now)
	require.NoError(t, err)
	assert.False(t, out.Succeeded())
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "Failed", out.Status.Label())
	assert.Equal(t, log, out.Log)
}

func TestWait_OtherTerminalStatuses(t *testing.T) {
	for _, code := range []string{"CANC", "TERM", "TIME"} {
		t.Run(code, func(t *testing.T) {
			src := &scriptedSource{responses: []StatusResponse{{HTTPStatus: http.StatusOK, ProcessingStatus: code}}}
			p, clock, _ := newTestPoller(src)

			out, err := p.Wait(context.Background(), "job", clock.now)
			require.NoError(t, err)
			assert.False(t, out.Succeeded())
			assert.True(t, out.Status.IsTerminal())
		})
	}
}

func TestWait_UnexpectedResponses(t *testing.T) {
	tests := []struct {
		name string
		resp StatusResponse
	}{
		{"unknown status", StatusResponse{HTTPStatus: http.StatusOK, ProcessingStatus: "WAIT"}},
		{"empty status", StatusResponse{HTTPStatus: http.StatusNotFound}},
		{"undecodable body", StatusResponse{HTTPStatus: http.StatusBadGateway, DecodeErr: errors.New("invalid character '<'")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{responses: []StatusResponse{pending("PROC"), tt.resp}}
			p, clock, obs := newTestPoller(src)

			out, err := p.Wait(context.Background(), "job-3", clock.now)
			require.ErrorIs(t, err, ErrUnexpectedResponse)

			var unexpected *UnexpectedResponseError
			require.True(t, errors.As(err, &unexpected))
			assert.Equal(t, tt.resp.HTTPStatus, unexpected.StatusCode)
			assert.Equal(t, 2, out.Polls)
			assert.Equal(t, 2, src.calls, "an unexpected response is not retried")
			assert.Len(t, *obs, 2)
		})
	}
}

func TestWait_PendingWithUnknownCodeKeepsPolling(t *testing.T) {
	src := &scriptedSource{responses: []StatusResponse{
		pending("QUEUED"),
		{HTTPStatus: http.StatusOK, ProcessingStatus: "COMP"},
	}}
	p, clock, _ := newTestPoller(src)

	out, err := p.Wait(context.Background(), "job-4", clock.now)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Waits)
	assert.True(t, out.Succeeded())
}

func TestWait_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	p, clock, _ := newTestPoller(&scriptedSource{err: boom})

	_, err := p.Wait(context.Background(), "job-5", clock.now)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrPollFailed)
	assert.NotErrorIs(t, err, ErrUnexpectedResponse)
}

func TestWait_UndecodablePendingIsLogged(t *testing.T) {
	src := &scriptedSource{responses: []StatusResponse{
		{HTTPStatus: http.StatusAccepted, DecodeErr: errors.New("unexpected end of JSON input")},
		{HTTPStatus: http.StatusOK, ProcessingStatus: "COMP"},
	}}
	p, clock, _ := newTestPoller(src)
	var buf bytes.Buffer
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	out, err := p.Wait(context.Background(), "job-8", clock.now)
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, 1, out.Waits)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "undecodable status response")
	assert.Contains(t, buf.String(), "unexpected end of JSON input")
}

func TestWait_ContextCanceledWhileWaiting(t *testing.T) {
	src := &scriptedSource{responses: []StatusResponse{pending("PROC")}}
	p, clock, _ := newTestPoller(src)

	ctx, cancel := context.WithCancel(context.Background())
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	out, err := p.Wait(ctx, "job-6", clock.now)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrPollFailed)
	assert.Equal(t, 1, out.Polls)
	assert.Zero(t, out.Waits)
}

func TestPoller_DefaultInterval(t *testing.T) {
	src := &scriptedSource{responses: []StatusResponse{
		pending("PROC"),
		{HTTPStatus: http.StatusOK, ProcessingStatus: "COMP"},
	}}
	p, clock, _ := newTestPoller(src)
	p.Interval = 0

	_, err := p.Wait(context.Background(), "job-7", clock.now)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultPollInterval}, clock.sleeps)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0.0 minutes", formatElapsed(0))
	assert.Equal(t, "2.5 minutes", formatElapsed(150*time.Second))
}
