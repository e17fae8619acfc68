package services

import "forumsync/internal/events"

// Broadcaster fans a change event out to connected clients. Publish must not
// block the caller.
type Broadcaster interface {
	Publish(e events.Event)
}

type NopBroadcaster struct{}

func (NopBroadcaster) Publish(events.Event) {}
