package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
)

// scripted returns statuses in order, repeating the last one.
type scripted struct {
	statuses []ci.Status
	calls    int
	err      error
}

func (s *scripted) Status(_ context.Context, id ci.RunID) (ci.RunStatus, error) {
	if s.err != nil {
		return ci.RunStatus{}, s.err
	}
	i := min(s.calls, len(s.statuses)-1)
	s.calls++
	return ci.RunStatus{ID: id, Status: s.statuses[i]}, nil
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestPoller(opts Options) (*Poller, *fakeClock) {
	p := New(opts)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p.now = clock.now
	p.sleep = clock.sleep
	return p, clock
}

func TestWait_ObserverOnlyOnChange(t *testing.T) {
	p, _ := newTestPoller(Options{Interval: time.Second})
	src := &scripted{statuses: []ci.Status{
		ci.StatusQueued, ci.StatusQueued, ci.StatusRunning, ci.StatusRunning, ci.StatusRunning, ci.StatusCompleted,
	}}

	var observed []ci.Status
	st, err := p.Wait(context.Background(), src, "run-1", func(s ci.RunStatus) {
		observed = append(observed, s.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, ci.StatusCompleted, st.Status)
	assert.Equal(t, []ci.Status{ci.StatusQueued, ci.StatusRunning, ci.StatusCompleted}, observed)
	assert.Equal(t, 6, src.calls)
}

func TestWait_TerminalStatuses(t *testing.T) {
	for _, terminal := range []ci.Status{ci.StatusCompleted, ci.StatusFailed, ci.StatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			p, clock := newTestPoller(Options{})
			st, err := p.Wait(context.Background(), &scripted{statuses: []ci.Status{terminal}}, "run", nil)
			require.NoError(t, err)
			assert.Equal(t, terminal, st.Status)
			assert.Empty(t, clock.sleeps)
		})
	}
}

func TestWait_TimeoutReturnsLastStatus(t *testing.T) {
	p, clock := newTestPoller(Options{Interval: 4 * time.Second, Timeout: 10 * time.Second})
	src := &scripted{statuses: []ci.Status{ci.StatusQueued, ci.StatusRunning}}

	st, err := p.Wait(context.Background(), src, "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, ci.StatusRunning, st.Status)
	assert.False(t, st.Status.Terminal())
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second, 2 * time.Second}, clock.sleeps)
	assert.Equal(t, 4, src.calls)
}

func TestWait_Backoff(t *testing.T) {
	p, clock := newTestPoller(Options{
		Interval:    time.Second,
		MaxInterval: 5 * time.Second,
		Multiplier:  2,
		Timeout:     time.Hour,
	})
	src := &scripted{statuses: []ci.Status{
		ci.StatusRunning, ci.StatusRunning, ci.StatusRunning, ci.StatusRunning, ci.StatusRunning, ci.StatusCompleted,
	}}

	_, err := p.Wait(context.Background(), src, "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, clock.sleeps)
}

func TestWait_Errors(t *testing.T) {
	p, _ := newTestPoller(Options{})
	boom := errors.New("boom")
	_, err := p.Wait(context.Background(), &scripted{err: boom}, "run-1", nil)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := p.Wait(ctx, &scripted{statuses: []ci.Status{ci.StatusRunning}}, "run-1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ci.StatusRunning, st.Status)
}

func TestNew_Defaults(t *testing.T) {
	opts := New(Options{}).Options()
	assert.Equal(t, DefaultOptions(), opts)

	opts = New(Options{Interval: time.Minute}).Options()
	assert.Equal(t, time.Minute, opts.MaxInterval)
}

func TestSleep(t *testing.T) {
	require.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
