package calendar

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/syncwatch/backend/internal/storage"
	"github.com/syncwatch/backend/internal/storage/models"
)

// ProductID is the PRODID of every published calendar.
const ProductID = "-//SyncWatch//EN"

// SourceNames holds the file key and display label of each source.
type SourceNames struct {
	KeyA   string
	KeyB   string
	LabelA string
	LabelB string
}

// Key returns the file key of src.
func (n SourceNames) Key(src models.Source) string {
	if src == models.SourceA {
		return n.KeyA
	}
	return n.KeyB
}

// Label returns the display label of src.
func (n SourceNames) Label(src models.Source) string {
	if src == models.SourceA {
		return n.LabelA
	}
	return n.LabelB
}

// ArtifactWriter publishes the bookings of one source as an .ics file the
// other platform can subscribe to.
type ArtifactWriter struct {
	dir   string
	names SourceNames
	tag   string
	now   func() time.Time
}

// NewArtifactWriter creates a writer publishing into dir.
func NewArtifactWriter(dir string, names SourceNames, tag string) *ArtifactWriter {
	return &ArtifactWriter{
		dir:   dir,
		names: names,
		tag:   tag,
		now:   time.Now,
	}
}

// Slug turns a property name into its file name prefix.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// FileName returns the artifact holding src's bookings; it is named after
// the platform that imports it.
func (w *ArtifactWriter) FileName(property string, src models.Source) string {
	return fmt.Sprintf("%s_for_%s.ics", Slug(property), w.names.Key(src.Other()))
}

// Render serializes bookings as an iCalendar document.
func (w *ArtifactWriter) Render(property string, src models.Source, bookings []models.Booking) string {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(fmt.Sprintf("%s (%s blocks)", property, w.names.Label(src)))
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	stamp := w.now().UTC()
	seen := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		uid := b.EventUID()
		if seen[uid] {
			continue
		}
		seen[uid] = true

		ev := cal.AddEvent(uid)
		ev.SetAllDayStartAt(b.Start)
		ev.SetAllDayEndAt(b.End)
		ev.SetSummary(b.Summary + " " + w.tag)
		ev.SetDtStampTime(stamp)
	}

	return cal.Serialize()
}

// Write renders and atomically replaces the artifact of src.
func (w *ArtifactWriter) Write(property string, src models.Source, bookings []models.Booking) (string, error) {
	path := filepath.Join(w.dir, w.FileName(property, src))
	if err := storage.WriteFileAtomic(path, []byte(w.Render(property, src, bookings)), 0o644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return path, nil
}
