// Package calendar fetches booking feeds, publishes calendar artifacts and
// runs the per-property sync cycle on a schedule.
package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"

	"github.com/syncwatch/backend/internal/storage/models"
)

const (
	// DefaultUserAgent identifies feed requests.
	DefaultUserAgent = "SyncWatch/1.0"
	// DefaultFetchTimeout bounds one feed request.
	DefaultFetchTimeout = 15 * time.Second
	// DefaultHorizonDays bounds recurrence expansion.
	DefaultHorizonDays = 365

	// DefaultSummary names a feed event that carries no SUMMARY.
	DefaultSummary = "Blocked"

	maxFeedBytes = 10 << 20
)

var (
	// ErrFeedEmpty is returned when a feed responds with an empty body.
	ErrFeedEmpty = errors.New("feed returned an empty body")
	// ErrFeedTooLarge is returned when a feed body exceeds the size limit.
	ErrFeedTooLarge = errors.New("feed body exceeds size limit")
)

// FeedSource fetches the current bookings of one feed URL.
type FeedSource interface {
	FetchBookings(ctx context.Context, feedURL string) ([]models.Booking, error)
}

// FeedOptions configures an HTTPFeedSource.
type FeedOptions struct {
	Timeout     time.Duration
	UserAgent   string
	HorizonDays int
}

// HTTPFeedSource downloads and parses iCalendar feeds over HTTP.
type HTTPFeedSource struct {
	client    *http.Client
	userAgent string
	horizon   int
	maxBytes  int64
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewHTTPFeedSource creates a feed source. Zero options take their defaults.
func NewHTTPFeedSource(opts FeedOptions, log logrus.FieldLogger) *HTTPFeedSource {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}

	return &HTTPFeedSource{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		horizon:   opts.HorizonDays,
		maxBytes:  maxFeedBytes,
		now:       time.Now,
		log:       log,
	}
}

// FetchBookings downloads feedURL and returns its bookings.
func (f *HTTPFeedSource) FetchBookings(ctx context.Context, feedURL string) ([]models.Booking, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", redactURL(feedURL), err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: status %d", redactURL(feedURL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", redactURL(feedURL), err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("reading %s: %w", redactURL(feedURL), ErrFeedTooLarge)
	}

	bookings, err := f.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", redactURL(feedURL), err)
	}

	f.log.WithFields(logrus.Fields{
		"url":      redactURL(feedURL),
		"bookings": len(bookings),
	}).Debug("feed fetched")

	return bookings, nil
}

// Parse converts an iCalendar document into bookings. Events lacking a start
// or end are skipped; recurring events are expanded within the horizon.
func (f *HTTPFeedSource) Parse(body []byte) ([]models.Booking, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrFeedEmpty
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	today := models.Date(f.now())
	windowStart := today.AddDate(0, 0, -1)
	windowEnd := today.AddDate(0, 0, f.horizon)

	var bookings []models.Booking
	for _, ve := range cal.Events() {
		b, ok := bookingFromEvent(ve)
		if !ok {
			continue
		}

		rule := ve.GetProperty(ical.ComponentPropertyRrule)
		if rule == nil || rule.Value == "" {
			bookings = append(bookings, b)
			continue
		}

		occurrences, err := expand(b, rule.Value, exceptionDates(ve), windowStart, windowEnd)
		if err != nil {
			f.log.WithError(err).WithField("uid", b.UID).Warn("skipping event with invalid RRULE")
			continue
		}
		bookings = append(bookings, occurrences...)
	}

	return bookings, nil
}

func bookingFromEvent(ve *ical.VEvent) (models.Booking, bool) {
	start, err := ve.GetStartAt()
	if err != nil {
		return models.Booking{}, false
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return models.Booking{}, false
	}

	b := models.Booking{
		Summary: DefaultSummary,
		Start:   models.Date(start),
		End:     models.Date(end),
	}
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		b.UID = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		b.Summary = strings.TrimSpace(p.Value)
	}

	return b, true
}

// expand returns one booking per occurrence of rule that is still running
// within [from, to], each keeping the base event's length in days. Dates in
// exdates are skipped. Every occurrence carries the base identity as its
// Series.
func expand(base models.Booking, rule string, exdates []time.Time, from, to time.Time) ([]models.Booking, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, err
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exdates {
		set.ExDate(ex)
	}

	length := base.End.Sub(base.Start)
	series := base.Identity()

	var out []models.Booking
	// Occurrences that started before the window but end inside it still block nights.
	for _, occ := range set.Between(from.Add(-length), to, true) {
		start := models.Date(occ)
		end := start.Add(length)
		if !end.After(from) {
			continue
		}

		b := base
		b.Series = series
		b.Start = start
		b.End = end
		if base.UID != "" {
			b.UID = base.UID + "/" + start.Format("20060102")
		}
		out = append(out, b)
	}
	return out, nil
}

// exceptionDates returns the EXDATE values of ve as calendar dates.
func exceptionDates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, ok := parseICalDate(strings.TrimSpace(part)); ok {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseICalDate reads a DATE or DATE-TIME value and keeps its calendar date.
func parseICalDate(v string) (time.Time, bool) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return models.Date(t), true
		}
	}
	return time.Time{}, false
}

// redactURL keeps only scheme and host, since feed URLs embed access tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "feed://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
