package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/backend/internal/storage/models"
)

// fakeCalendar is an in-memory Calendar that counts calls.
type fakeCalendar struct {
	events    map[string][]Event
	nextID    int
	inserts   int
	deletes   int
	failOn    string
	failAfter int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string][]Event)}
}

func (f *fakeCalendar) seed(calendarID string, evs ...Event) {
	for _, ev := range evs {
		f.nextID++
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("ev-%d", f.nextID)
		}
		f.events[calendarID] = append(f.events[calendarID], ev)
	}
}

func (f *fakeCalendar) shouldFail(op string) bool {
	if f.failOn != op {
		return false
	}
	if f.failAfter > 0 {
		f.failAfter--
		return false
	}
	return true
}

func (f *fakeCalendar) List(_ context.Context, calendarID string) ([]Event, error) {
	if f.shouldFail("list") {
		return nil, errors.New("list failed")
	}
	return append([]Event(nil), f.events[calendarID]...), nil
}

func (f *fakeCalendar) Insert(_ context.Context, calendarID string, start, end time.Time, summary string) (string, error) {
	if f.shouldFail("insert") {
		return "", errors.New("insert failed")
	}
	f.inserts++
	f.nextID++
	id := fmt.Sprintf("ev-%d", f.nextID)
	f.events[calendarID] = append(f.events[calendarID], Event{ID: id, Start: start, End: end, Summary: summary})
	return id, nil
}

func (f *fakeCalendar) Delete(_ context.Context, calendarID, eventID string) error {
	if f.shouldFail("delete") {
		return errors.New("delete failed")
	}
	f.deletes++
	evs := f.events[calendarID]
	for i, ev := range evs {
		if ev.ID == eventID {
			f.events[calendarID] = append(evs[:i], evs[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeCalendar) resetCounts() {
	f.inserts, f.deletes = 0, 0
}

func (f *fakeCalendar) summaries(calendarID string) []string {
	var out []string
	for _, ev := range f.events[calendarID] {
		out = append(out, ev.Start.Format(models.DateLayout)+" "+ev.End.Format(models.DateLayout)+" "+ev.Summary)
	}
	return out
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bk(summary, start, end string) models.Booking {
	return models.Booking{UID: summary, Summary: summary, Start: date(start), End: date(end)}
}

func TestReconcile_IncrementalInsertsOnlyMissing(t *testing.T) {
	cal := newFakeCalendar()
	cal.seed("m1", Event{Start: date("2024-06-01"), End: date("2024-06-05"), Summary: "X [SyncWatch]"})
	r := NewReconciler(cal, StrategyIncremental, DefaultTag, quietLogger())

	res, err := r.Reconcile(context.Background(), "m1", []models.Booking{
		bk("X", "2024-06-01", "2024-06-05"),
		bk("Y", "2024-07-01", "2024-07-03"),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 1, cal.inserts)
	assert.Equal(t, 0, cal.deletes)
	assert.ElementsMatch(t, []string{
		"2024-06-01 2024-06-05 X [SyncWatch]",
		"2024-07-01 2024-07-03 Y [SyncWatch]",
	}, cal.summaries("m1"))
}

func TestReconcile_IncrementalDeletesStaleAndLeavesForeign(t *testing.T) {
	cal := newFakeCalendar()
	cal.seed("m1",
		Event{Start: date("2024-06-01"), End: date("2024-06-05"), Summary: "Old [SyncWatch]"},
		Event{Start: date("2024-06-01"), End: date("2024-06-05"), Summary: "Owner stay"},
	)
	r := NewReconciler(cal, StrategyIncremental, DefaultTag, quietLogger())

	res, err := r.Reconcile(context.Background(), "m1", nil)

	require.NoError(t, err)
	assert.Equal(t, Result{Deleted: 1, Foreign: 1}, res)
	assert.Equal(t, []string{"2024-06-01 2024-06-05 Owner stay"}, cal.summaries("m1"))
}

func TestReconcile_Idempotent(t *testing.T) {
	target := []models.Booking{
		bk("X", "2024-06-01", "2024-06-05"),
		bk("Y", "2024-07-01", "2024-07-03"),
		// Same dates and summary as X: one logical mirror event.
		bk("X", "2024-06-01", "2024-06-05"),
	}

	t.Run("incremental makes no calls on the second run", func(t *testing.T) {
		cal := newFakeCalendar()
		cal.seed("m1",
			Event{Start: date("2024-08-01"), End: date("2024-08-02"), Summary: "Gone [SyncWatch]"},
			Event{Start: date("2024-06-01"), End: date("2024-06-05"), Summary: "X [SyncWatch]"},
			Event{Start: date("2024-06-01"), End: date("2024-06-05"), Summary: "X [SyncWatch]"},
		)
		r := NewReconciler(cal, StrategyIncremental, DefaultTag, quietLogger())

		_, err := r.Reconcile(context.Background(), "m1", target)
		require.NoError(t, err)
		first := cal.summaries("m1")

		cal.resetCounts()
		res, err := r.Reconcile(context.Background(), "m1", target)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Inserted)
		assert.Equal(t, 0, res.Deleted)
		assert.Equal(t, 0, cal.inserts+cal.deletes)
		assert.Equal(t, first, cal.summaries("m1"))
		assert.Len(t, first, 2)
	})

	t.Run("replace converges to the same visible set", func(t *testing.T) {
		cal := newFakeCalendar()
		cal.seed("m1",
			Event{Start: date("2024-08-01"), End: date("2024-08-02"), Summary: "Gone [SyncWatch]"},
			Event{Start: date("2024-09-01"), End: date("2024-09-02"), Summary: "Foreign"},
		)
		r := NewReconciler(cal, StrategyReplace, DefaultTag, quietLogger())

		res, err := r.Reconcile(context.Background(), "m1", target)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 2, Deleted: 1, Foreign: 1}, res)
		first := cal.summaries("m1")

		res, err = r.Reconcile(context.Background(), "m1", target)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 2, Deleted: 2, Foreign: 1}, res)
		assert.ElementsMatch(t, first, cal.summaries("m1"))
	})
}

func TestReconcile_AbortsOnFirstFailure(t *testing.T) {
	testCases := []struct {
		name     string
		failOn   string
		after    int
		expected Result
	}{
		{name: "list", failOn: "list"},
		{name: "delete", failOn: "delete", expected: Result{}},
		{name: "second insert", failOn: "insert", after: 1, expected: Result{Inserted: 1, Deleted: 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cal := newFakeCalendar()
			cal.seed("m1", Event{Start: date("2024-05-01"), End: date("2024-05-02"), Summary: "Gone [SyncWatch]"})
			cal.failOn, cal.failAfter = tc.failOn, tc.after
			r := NewReconciler(cal, StrategyIncremental, DefaultTag, quietLogger())

			res, err := r.Reconcile(context.Background(), "m1", []models.Booking{
				bk("X", "2024-06-01", "2024-06-05"),
				bk("Y", "2024-07-01", "2024-07-03"),
			})

			require.Error(t, err)
			assert.Equal(t, tc.expected.Inserted, res.Inserted)
			assert.Equal(t, tc.expected.Deleted, res.Deleted)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyIncremental, s)

	s, err = ParseStrategy("replace")
	require.NoError(t, err)
	assert.Equal(t, StrategyReplace, s)

	_, err = ParseStrategy("merge")
	assert.Error(t, err)
}
