package events

import (
	"context"
	"errors"
	"time"
)

// Type names an event
type Type string

// SettingsUpdated is published once per write that changed the settings or
// the stored scripts
const SettingsUpdated Type = "SettingsUpdated"

// Event is a single notification
type Event struct {
	Type    Type           `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Time    time.Time      `json:"time"`
}

// New returns an event of type t stamped with the current time
func New(t Type, payload map[string]any) Event {
	return Event{Type: t, Payload: payload, Time: time.Now().UTC()}
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// MultiPublisher publishes to every member and joins their errors
type MultiPublisher []Publisher

// Publish implements Publisher
func (m MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) error {
	return nil
}
