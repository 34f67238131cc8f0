// Package settings holds the user's notification preferences: a single-row
// SQLite store that is authoritative locally, plus a best-effort mirror
// client that keeps the relay's copy in step.
package settings

import (
	"errors"
	"fmt"
	"time"
)

// TimeWindow selects which days of the week the engine may notify on.
type TimeWindow string

const (
	// Workday allows Monday through Friday.
	Workday TimeWindow = "workday"
	// Weekend allows Saturday and Sunday.
	Weekend TimeWindow = "weekend"
	// AllTimes allows every day.
	AllTimes TimeWindow = "alltimes"
)

// ErrNoSettings is returned when the user has never saved settings.
var ErrNoSettings = errors.New("settings: not configured")

// Settings is the full preference record.
type Settings struct {
	TimeWindow TimeWindow `json:"time"`
	MaxQuotes  int        `json:"maxQuotes"`
	Community  bool       `json:"receivedFromCommunity"`
	Tags       []string   `json:"tag,omitempty"`
	Enabled    bool       `json:"enabled"`
	PushToken  string     `json:"pushToken,omitempty"`
	Timezone   string     `json:"timezone,omitempty"`
}

// Default returns the settings applied before the user saves anything.
func Default() *Settings {
	return &Settings{
		TimeWindow: AllTimes,
		MaxQuotes:  3,
		Community:  true,
		Enabled:    true,
	}
}

// Validate checks field ranges.
func (s *Settings) Validate() error {
	switch s.TimeWindow {
	case Workday, Weekend, AllTimes:
	default:
		return fmt.Errorf("settings: unknown time window %q", s.TimeWindow)
	}
	if s.MaxQuotes < 1 {
		return fmt.Errorf("settings: maxQuotes must be >= 1, got %d", s.MaxQuotes)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("settings: timezone: %w", err)
		}
	}
	return nil
}

// Location resolves the user's timezone, falling back to the process local
// zone when unset or unknown.
func (s *Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ShouldSendToday reports whether now's day of week falls inside the
// configured window. Saturday and Sunday are the weekend; everything else
// is a workday.
func (s *Settings) ShouldSendToday(now time.Time) bool {
	wd := now.Weekday()
	weekend := wd == time.Saturday || wd == time.Sunday
	switch s.TimeWindow {
	case Workday:
		return !weekend
	case Weekend:
		return weekend
	default:
		return true
	}
}
