package events

import (
	"github.com/strand-labs/strand/pkg/strand/v1/events"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
)

// ChannelEventBus implements the public events.Bus interface using a buffered
// Go channel. It provides a simple, in-process, decoupled event distribution
// mechanism. Its primary characteristic is non-blocking emission: the
// interpreter hot path is never slowed down by a slow listener.
type ChannelEventBus struct {
	channel chan events.Event
	// log is used for internal operational messages, such as warning about
	// dropped events when the channel buffer is full.
	log strandlog.Logger
}

// NewChannelEventBus creates a new ChannelEventBus with the specified buffer
// size. If bufferSize is non-positive, a default of 100 is used. Panics if
// the provided logger is nil.
func NewChannelEventBus(bufferSize int, log strandlog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit sends an event onto the internal buffered channel. The send is
// non-blocking: if the buffer is full, the event is dropped and a warning
// logged.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for consumers. This method
// is specific to ChannelEventBus and not part of the public events.Bus
// interface; in-process listeners consume events directly from it.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying event channel, signaling consumers reading
// from GetChannel() that no more events will be sent.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

var _ events.Bus = (*ChannelEventBus)(nil)
