package events

import "time"

// EventType represents the type of an interpreter event.
type EventType string

// Standard strand event types.
const (
	ExecutionStart  EventType = "ExecutionStart"  // a request entered the interpreter
	ExecutionEnd    EventType = "ExecutionEnd"    // a request reached a terminal result
	ModuleCallStart EventType = "ModuleCallStart" // before a module method is invoked
	ModuleCallEnd   EventType = "ModuleCallEnd"   // after a module method returned
	ExecutionYield  EventType = "ExecutionYield"  // a module call suspended
	ExecutionResume EventType = "ExecutionResume" // a suspended execution was resumed
	ExecutionCancel EventType = "ExecutionCancel" // a suspended execution was canceled
	PolicyReloaded  EventType = "PolicyReloaded"  // the watcher swapped in a recompiled graph
)

// Event represents a significant occurrence within the interpreter.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// PolicyName identifies the policy document, if applicable.
	PolicyName string `json:"policy_name,omitempty"`
	// ExecutionID identifies the request execution, if applicable.
	ExecutionID string `json:"execution_id,omitempty"`
	// Node is the debug name of the node context, if applicable.
	Node string `json:"node,omitempty"`
	// Payload contains event-specific data. Attribute values that may be
	// sensitive (passwords and the like) MUST NOT be included.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing events within the interpreter.
// Implementations could include logging, sending to message queues, etc.
type Bus interface {
	// Emit publishes an event to the bus. Implementations should be
	// non-blocking or handle blocking carefully to avoid slowing down the
	// interpreter core.
	Emit(event Event)
}
