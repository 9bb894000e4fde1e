// Package notify publishes new-posting notifications.
package notify

import (
	"context"
	"time"
)

// NewPosting is the payload published once per genuinely new posting.
type NewPosting struct {
	Source   string     `json:"source"`
	Title    string     `json:"title"`
	Company  string     `json:"company,omitempty"`
	Location string     `json:"location,omitempty"`
	URL      string     `json:"url"`
	Labels   []string   `json:"labels,omitempty"`
	PostedAt *time.Time `json:"posted_at,omitempty"`
}

// Publisher sends one payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
