// Package catalog maintains the local quote snapshot: an SQLite-backed store
// that is replaced wholesale by periodic syncs against the remote quote
// service, and read by the scheduler when a notification fires.
package catalog

import "strings"

// Quote is one displayable item in the catalog.
type Quote struct {
	ID        string   `json:"_id"`
	Body      string   `json:"body"`
	Author    string   `json:"author,omitempty"`
	URL       string   `json:"url,omitempty"`
	Image     string   `json:"image,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Tags      []string `json:"tag,omitempty"`
	TimeStart string   `json:"timeStart,omitempty"` // "HH:mm", empty when unset
	TimeEnd   string   `json:"timeEnd,omitempty"`
	Source    string   `json:"source,omitempty"` // "" for curated, "community" for user-submitted
}

// HasTimeRange reports whether the quote declares a preferred display window.
// Both bounds must be present.
func (q *Quote) HasTimeRange() bool {
	return q.TimeStart != "" && q.TimeEnd != ""
}

// HasTag reports whether the quote carries the given tag (case-insensitive).
func (q *Quote) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
