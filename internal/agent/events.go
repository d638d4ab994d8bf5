package agent

// EventType identifies a streamed agent event.
type EventType string

const (
	// EventToolCall is emitted when the model invokes a tool.
	EventToolCall EventType = "tool_call"
	// EventFinal carries the final answer. Terminal.
	EventFinal EventType = "final"
	// EventError carries a failure. Terminal.
	EventError EventType = "error"
)

// Event is a single streamed agent event. The JSON shape is the wire format
// sent to chat clients as NDJSON lines.
type Event struct {
	Type       EventType `json:"type"`
	Name       string    `json:"name,omitempty"`
	Args       any       `json:"args,omitempty"`
	Output     string    `json:"output,omitempty"`
	OutputHTML string    `json:"output_html,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventFinal || e.Type == EventError
}

// EmitFunc receives events as they occur. Implementations must not block
// indefinitely; the bridge forwards into a buffered channel.
type EmitFunc func(Event)
