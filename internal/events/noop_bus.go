package events

import "github.com/strand-labs/strand/pkg/strand/v1/events"

// NoOpEventBus is the default events.Bus implementation. It performs no
// action when Emit is called, so components emitting events never have to
// nil-check the bus even when event handling is disabled.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new instance of the NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit implements the events.Bus interface method. It does nothing.
func (n *NoOpEventBus) Emit(event events.Event) {
}

var _ events.Bus = (*NoOpEventBus)(nil)
