package router

import "github.com/luma/eventmsg/protocol"

// Event is passed to every handler invoked for a frame. Handlers must not keep
// Payload after returning; copy it instead.
type Event struct {
	Source     protocol.SourceID
	SourceName string

	// Handler is the registered name of the handler being invoked.
	Handler string

	Name    string
	Payload []byte
	Header  protocol.Header
}

// Text returns the payload as a string.
func (e *Event) Text() string {
	return string(e.Payload)
}

// Frame returns the decoded frame the event was built from.
func (e *Event) Frame() protocol.Frame {
	return protocol.Frame{
		Header:  e.Header,
		Name:    e.Name,
		Payload: e.Payload,
	}
}

type HandlerFunc func(ev *Event)
