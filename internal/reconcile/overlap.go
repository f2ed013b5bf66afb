// Package reconcile compares fetched bookings against the prior snapshot and
// decides which alerts a property cycle must raise.
package reconcile

import "time"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Ranges that only touch (one ends the day the other starts) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
