// Package notify delivers rendered notifications. The engine treats delivery
// as fire-and-forget: a failing sink is logged and the cycle continues, so a
// broken display surface never stalls the scheduler.
package notify

import (
	"context"

	"github.com/boostme/boostme/catalog"
)

// Notification is one rendered message ready for display.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Tag   string            `json:"tag,omitempty"` // collapse key; quote ID
	Data  map[string]string `json:"data,omitempty"`
}

// Sink delivers notifications to one display surface.
type Sink interface {
	// Name identifies the sink in logs and the event trail.
	Name() string
	// Send delivers n. Implementations must honour ctx cancellation.
	Send(ctx context.Context, n Notification) error
}

// FromQuote renders a quote into a notification. The author becomes the
// title; quotes without one fall back to a fixed product title.
func FromQuote(q catalog.Quote) Notification {
	title := q.Author
	if title == "" {
		title = "Your daily boost"
	}
	n := Notification{
		Title: title,
		Body:  q.Body,
		Icon:  q.Icon,
		Tag:   q.ID,
	}
	if q.URL != "" {
		n.Data = map[string]string{"url": q.URL}
	}
	return n
}
