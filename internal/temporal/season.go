// Package temporal groups raster collections along the calendar: by day,
// by year, and by possibly year-crossing season windows.
package temporal

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadSeason indicates a season definition outside the allowed
// month/duration ranges. This is a configuration error.
var ErrBadSeason = errors.New("invalid season definition")

// SeasonDefinition describes a fixed-length calendar window anchored to
// a start month. The window for anchor year Y is the half-open interval
// [Y-StartMonth-01, +DurationMonths); with DurationMonths up to 12 the
// window may cross into year Y+1 but two anchor years' windows can never
// both contain the same instant.
type SeasonDefinition struct {
	Name           string
	StartMonth     int // 1..12
	DurationMonths int // 1..12
}

// Validate checks the month and duration ranges.
func (s SeasonDefinition) Validate() error {
	if s.StartMonth < 1 || s.StartMonth > 12 {
		return fmt.Errorf("%w: start month %d outside [1,12]", ErrBadSeason, s.StartMonth)
	}
	if s.DurationMonths < 1 || s.DurationMonths > 12 {
		return fmt.Errorf("%w: duration %d months outside [1,12]", ErrBadSeason, s.DurationMonths)
	}
	return nil
}

// WindowStart returns the first instant of the season window for the
// given anchor year, in UTC.
func (s SeasonDefinition) WindowStart(anchorYear int) time.Time {
	return time.Date(anchorYear, time.Month(s.StartMonth), 1, 0, 0, 0, 0, time.UTC)
}

// WindowEnd returns the first instant after the season window for the
// given anchor year.
func (s SeasonDefinition) WindowEnd(anchorYear int) time.Time {
	return s.WindowStart(anchorYear).AddDate(0, s.DurationMonths, 0)
}

// Contains reports whether t falls inside the anchor year's window.
// Membership is start <= t < end.
func (s SeasonDefinition) Contains(anchorYear int, t time.Time) bool {
	t = t.UTC()
	return !t.Before(s.WindowStart(anchorYear)) && t.Before(s.WindowEnd(anchorYear))
}

// AnchorYear resolves the unique anchor year whose window contains t.
// The second return is false when t falls in no window (possible when
// DurationMonths < 12 leaves calendar gaps).
func (s SeasonDefinition) AnchorYear(t time.Time) (int, bool) {
	t = t.UTC()
	// A window starting in anchor year Y can only contain instants in
	// Y or Y+1, so two candidate anchors suffice.
	for _, y := range [2]int{t.Year(), t.Year() - 1} {
		if s.Contains(y, t) {
			return y, true
		}
	}
	return 0, false
}
