package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/strand-labs/strand/pkg/strand/v1/events"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
)

// MetricsEventListener subscribes to an interpreter event bus and updates
// Prometheus counters from the suspension lifecycle events it receives.
type MetricsEventListener struct {
	bus            *ChannelEventBus
	log            strandlog.Logger
	yieldsCounter  prometheus.Counter
	resumesCounter prometheus.Counter
	cancelsCounter prometheus.Counter
}

// NewMetricsEventListener creates a new listener. It requires the
// ChannelEventBus to subscribe to and the three suspension counters it
// increments.
func NewMetricsEventListener(bus *ChannelEventBus, yields, resumes, cancels prometheus.Counter, log strandlog.Logger) *MetricsEventListener {
	if bus == nil || yields == nil || resumes == nil || cancels == nil || log == nil {
		panic("MetricsEventListener requires a non-nil ChannelEventBus, counters, and Logger")
	}
	return &MetricsEventListener{
		bus:            bus,
		log:            log.With("component", "MetricsEventListener"),
		yieldsCounter:  yields,
		resumesCounter: resumes,
		cancelsCounter: cancels,
	}
}

// Start begins listening for events on the bus. It runs until the bus channel
// is closed or the context is done; callers run it in its own goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.ExecutionYield:
		l.yieldsCounter.Inc()
	case events.ExecutionResume:
		l.resumesCounter.Inc()
	case events.ExecutionCancel:
		l.cancelsCounter.Inc()
	}
}
