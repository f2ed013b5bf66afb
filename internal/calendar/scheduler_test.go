package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/backend/internal/storage/models"
)

type stubSyncer struct {
	mu       sync.Mutex
	fail     map[string]error
	calls    []string
	finished []time.Time
	delay    time.Duration
	onSync   func(calls int)
}

func (s *stubSyncer) SyncProperty(_ context.Context, p models.Property) (*models.SyncResult, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.calls = append(s.calls, p.Name)
	s.finished = append(s.finished, time.Now())
	n := len(s.calls)
	err := s.fail[p.Name]
	s.mu.Unlock()

	if s.onSync != nil {
		s.onSync(n)
	}
	if err != nil {
		return &models.SyncResult{PropertyName: p.Name, State: models.StateFetching}, err
	}
	return &models.SyncResult{PropertyName: p.Name, State: models.StateIdle, NewBookings: 1}, nil
}

type recordingSchedule struct {
	mu    sync.Mutex
	after []time.Time
	gap   time.Duration
}

func (r *recordingSchedule) Next(t time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after = append(r.after, t)
	return t.Add(r.gap)
}

func properties(names ...string) []models.Property {
	out := make([]models.Property, 0, len(names))
	for _, n := range names {
		out = append(out, models.Property{Name: n, FeedA: "https://a/" + n, FeedB: "https://b/" + n})
	}
	return out
}

func TestParseSchedule(t *testing.T) {
	from := time.Date(2024, 6, 1, 10, 7, 0, 0, time.UTC)

	tests := []struct {
		refresh string
		want    time.Time
		wantErr bool
	}{
		{"", from.Add(DefaultRefresh), false},
		{"15m", from.Add(15 * time.Minute), false},
		{"90s", from.Add(90 * time.Second), false},
		{"@every 1h", from.Add(time.Hour), false},
		{"*/30 * * * *", time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), false},
		{"@hourly", time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC), false},
		{"500ms", time.Time{}, true},
		{"every now and then", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.refresh, func(t *testing.T) {
			sched, err := ParseSchedule(tt.refresh)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(sched.Next(from)), "got %s", sched.Next(from))
		})
	}
}

func TestScheduler_RunOnceIsolatesFailures(t *testing.T) {
	syncer := &stubSyncer{fail: map[string]error{"Beta": errors.New("store unavailable")}}
	s := NewScheduler(syncer, properties("Alpha", "Beta", "Gamma"), nil, nil, quietLogger())

	results := s.RunOnce(context.Background())

	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, syncer.calls)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Error)
	assert.EqualError(t, results[1].Error, "store unavailable")
	assert.Equal(t, models.StateIdle, results[2].State)

	beta, ok := s.LastResult("Beta")
	require.True(t, ok)
	assert.Equal(t, models.StateFetching, beta.State)
	assert.EqualError(t, beta.Error, "store unavailable")
	_, ok = s.LastResult("Delta")
	assert.False(t, ok)
	assert.False(t, s.LastSweep().IsZero())
}

func TestScheduler_RunOnceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	syncer := &stubSyncer{onSync: func(int) { cancel() }}
	s := NewScheduler(syncer, properties("Alpha", "Beta"), nil, nil, quietLogger())

	results := s.RunOnce(ctx)

	assert.Len(t, results, 1)
	assert.Equal(t, []string{"Alpha"}, syncer.calls)
}

func TestScheduler_RunWaitsFromSweepEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two properties per sweep; stop during the third sweep.
	syncer := &stubSyncer{
		delay: 5 * time.Millisecond,
		onSync: func(n int) {
			if n == 5 {
				cancel()
			}
		},
	}
	sched := &recordingSchedule{gap: 10 * time.Millisecond}
	s := NewScheduler(syncer, properties("Alpha", "Beta"), sched, nil, quietLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	sched.mu.Lock()
	defer sched.mu.Unlock()

	require.Len(t, sched.after, 2, "next tick is computed once per completed sweep")
	assert.False(t, sched.after[0].Before(syncer.finished[1]), "period starts after the first sweep's last property")
	assert.False(t, sched.after[1].Before(syncer.finished[3]), "period starts after the second sweep's last property")
	assert.False(t, syncer.finished[2].Before(sched.after[0].Add(sched.gap)), "second sweep waits a full period")

	assert.False(t, s.NextSweep().IsZero())
	r, ok := s.LastResult("Alpha")
	require.True(t, ok)
	assert.Equal(t, 1, r.NewBookings)
}
