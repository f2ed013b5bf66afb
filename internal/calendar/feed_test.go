package calendar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwatch/backend/internal/reconcile"
	"github.com/syncwatch/backend/internal/storage/models"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func ics(lines ...string) string {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//Test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestFeed(horizon int) *HTTPFeedSource {
	f := NewHTTPFeedSource(FeedOptions{HorizonDays: horizon}, quietLogger())
	f.now = func() time.Time { return time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC) }
	return f
}

func TestHTTPFeedSource_FetchBookings(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:a1@airbnb.com",
		"DTSTART;VALUE=DATE:20240601",
		"DTEND;VALUE=DATE:20240605",
		"SUMMARY:Reserved",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:a2",
		"DTSTART:20240610T150000Z",
		"DTEND:20240612T110000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:no-end",
		"DTSTART;VALUE=DATE:20240701",
		"END:VEVENT",
	)

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/calendar")
		io.WriteString(w, body)
	}))
	defer srv.Close()

	bookings, err := newTestFeed(0).FetchBookings(context.Background(), srv.URL+"/cal.ics?t=secret")
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	require.Len(t, bookings, 2)
	assert.Equal(t, models.Booking{UID: "a1@airbnb.com", Summary: "Reserved", Start: date("2024-06-01"), End: date("2024-06-05")}, bookings[0])
	assert.Equal(t, models.Booking{UID: "a2", Summary: DefaultSummary, Start: date("2024-06-10"), End: date("2024-06-12")}, bookings[1])
}

func TestHTTPFeedSource_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantErr: "status 500"},
		{name: "not found", status: http.StatusNotFound, wantErr: "status 404"},
		{name: "empty body", status: http.StatusOK, body: "  \r\n", wantErr: ErrFeedEmpty.Error()},
		{name: "not a calendar", status: http.StatusOK, body: "<html>login</html>", wantErr: "parsing"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := newTestFeed(0).FetchBookings(context.Background(), srv.URL+"/private/path.ics?token=abc")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.NotContains(t, err.Error(), "token=abc")
			assert.NotContains(t, err.Error(), "/private/path.ics")
		})
	}
}

func TestHTTPFeedSource_EmptyBodyIsSentinel(t *testing.T) {
	_, err := newTestFeed(0).Parse(nil)
	assert.True(t, errors.Is(err, ErrFeedEmpty))
}

func TestHTTPFeedSource_ExpandsRecurringBlocks(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:cleaning",
		"DTSTART;VALUE=DATE:20240520",
		"DTEND;VALUE=DATE:20240521",
		"RRULE:FREQ=WEEKLY;COUNT=10",
		"SUMMARY:Cleaning",
		"END:VEVENT",
	)

	bookings, err := newTestFeed(30).Parse([]byte(body))
	require.NoError(t, err)

	var starts []string
	for _, b := range bookings {
		starts = append(starts, b.Start.Format(models.DateLayout))
		assert.Equal(t, 24*time.Hour, b.End.Sub(b.Start))
		assert.Equal(t, "cleaning/"+b.Start.Format("20060102"), b.UID)
		assert.Equal(t, "cleaning", b.Identity())
	}
	assert.Equal(t, []string{"2024-06-03", "2024-06-10", "2024-06-17", "2024-06-24", "2024-07-01"}, starts)
}

func TestHTTPFeedSource_RecurringSeriesIsStableAcrossDays(t *testing.T) {
	body := []byte(ics(
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:owner-block",
		"DTSTART;VALUE=DATE:20240520",
		"DTEND;VALUE=DATE:20240522",
		"RRULE:FREQ=WEEKLY",
		"END:VEVENT",
	))
	feed := newTestFeed(30)

	feed.now = func() time.Time { return time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC) }
	first, err := feed.Parse(body)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	feed.now = func() time.Time { return time.Date(2024, 7, 15, 8, 0, 0, 0, time.UTC) }
	second, err := feed.Parse(body)
	require.NoError(t, err)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first[0].Start, second[0].Start)

	prior := models.NewSnapshot("Villa")
	d := reconcile.Compute(first, nil, prior)
	snap := reconcile.NextSnapshot(prior, first, nil, d, nil, nil, time.Now())
	assert.Equal(t, []string{"owner-block"}, snap.SourceAUIDs)

	d = reconcile.Compute(second, nil, snap)
	assert.Empty(t, d.NewFromA)
	assert.Empty(t, d.CancelledFromA)

	policy := reconcile.Policy{Labels: reconcile.Labels{A: "Airbnb", B: "Booking.com"}}
	assert.Empty(t, policy.Decide("Villa", d, snap, nil))
}

func TestHTTPFeedSource_KeepsOccurrenceInProgress(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:long-stay",
		"DTSTART;VALUE=DATE:20240501",
		"DTEND;VALUE=DATE:20240511",
		"RRULE:FREQ=MONTHLY;COUNT=3",
		"END:VEVENT",
	)

	feed := newTestFeed(10)
	feed.now = func() time.Time { return time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC) }
	bookings, err := feed.Parse([]byte(body))
	require.NoError(t, err)

	require.Len(t, bookings, 1)
	assert.Equal(t, date("2024-06-01"), bookings[0].Start)
	assert.Equal(t, date("2024-06-11"), bookings[0].End)
}

func TestHTTPFeedSource_HonorsExdate(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:cleaning",
		"DTSTART;VALUE=DATE:20240603",
		"DTEND;VALUE=DATE:20240604",
		"RRULE:FREQ=WEEKLY;COUNT=4",
		"EXDATE;VALUE=DATE:20240610,20240624",
		"EXDATE:20240617T000000Z",
		"END:VEVENT",
	)

	bookings, err := newTestFeed(60).Parse([]byte(body))
	require.NoError(t, err)

	require.Len(t, bookings, 1)
	assert.Equal(t, date("2024-06-03"), bookings[0].Start)
}

func TestHTTPFeedSource_RejectsOversizedBody(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"DTSTAMP:20240501T000000Z",
		"UID:a1",
		"DTSTART;VALUE=DATE:20240601",
		"DTEND;VALUE=DATE:20240605",
		"END:VEVENT",
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	defer srv.Close()

	feed := newTestFeed(0)
	feed.maxBytes = int64(len(body)) - 1
	_, err := feed.FetchBookings(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrFeedTooLarge))

	feed.maxBytes = int64(len(body))
	bookings, err := feed.FetchBookings(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://www.airbnb.com/...(redacted)", redactURL("https://www.airbnb.com/calendar/ical/1.ics?t=abc"))
	assert.Equal(t, "feed://...(redacted)", redactURL("not a url"))
}
