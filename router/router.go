package router

import (
	"github.com/luma/eventmsg/protocol"
)

type Options struct {
	// EnforceSender makes Filter.Sender take part in matching. It is off by default:
	// deployed devices register with arbitrary sender filters that were never
	// enforced.
	EnforceSender bool
}

type registration struct {
	name   string
	filter Filter
	fn     HandlerFunc
}

type Router struct {
	enforceSender bool

	rawHandlers []registration
	dispatchers []registration
	unhandled   *registration
}

func New(options Options) *Router {
	return &Router{
		enforceSender: options.EnforceSender,
	}
}

// RegisterDispatcher adds a dispatcher after those already registered. It returns
// ErrNameTaken, and changes nothing, if name is in use by another dispatcher.
func (r *Router) RegisterDispatcher(name string, filter Filter, fn HandlerFunc) error {
	return register(&r.dispatchers, name, filter, fn)
}

func (r *Router) UnregisterDispatcher(name string) error {
	return unregister(&r.dispatchers, name)
}

// RegisterRawHandler adds an observer that sees every matching frame, whether or
// not a dispatcher handles it.
func (r *Router) RegisterRawHandler(name string, filter Filter, fn HandlerFunc) error {
	return register(&r.rawHandlers, name, filter, fn)
}

func (r *Router) UnregisterRawHandler(name string) error {
	return unregister(&r.rawHandlers, name)
}

// SetUnhandledHandler sets the fallback for frames no dispatcher matched, replacing
// any previous one.
func (r *Router) SetUnhandledHandler(name string, filter Filter, fn HandlerFunc) error {
	if fn == nil {
		return ErrNilHandler
	}

	r.unhandled = &registration{name: name, filter: filter, fn: fn}
	return nil
}

func (r *Router) ClearUnhandledHandler() {
	r.unhandled = nil
}

// Dispatchers returns the registered dispatcher names in invocation order.
func (r *Router) Dispatchers() []string {
	return names(r.dispatchers)
}

// RawHandlers returns the registered raw handler names in invocation order.
func (r *Router) RawHandlers() []string {
	return names(r.rawHandlers)
}

// Dispatch delivers a frame to the matching handlers and reports whether a
// dispatcher handled it.
func (r *Router) Dispatch(source protocol.SourceID, sourceName string, frame protocol.Frame) bool {
	ev := Event{
		Source:     source,
		SourceName: sourceName,
		Name:       frame.Name,
		Payload:    frame.Payload,
		Header:     frame.Header,
	}

	for _, raw := range r.rawHandlers {
		if raw.filter.Match(frame.Header, r.enforceSender) {
			r.invoke(raw, ev)
		}
	}

	handled := false

	for _, dispatcher := range r.dispatchers {
		if dispatcher.filter.Match(frame.Header, r.enforceSender) {
			r.invoke(dispatcher, ev)
			handled = true
		}
	}

	if !handled && r.unhandled != nil && r.unhandled.filter.Match(frame.Header, r.enforceSender) {
		r.invoke(*r.unhandled, ev)
	}

	return handled
}

// invoke passes each handler its own copy of the event, payload included, so one
// handler cannot alter what the next one sees.
func (r *Router) invoke(reg registration, ev Event) {
	ev.Handler = reg.name
	ev.Payload = append([]byte(nil), ev.Payload...)
	reg.fn(&ev)
}

func register(regs *[]registration, name string, filter Filter, fn HandlerFunc) error {
	if fn == nil {
		return ErrNilHandler
	}

	for _, reg := range *regs {
		if reg.name == name {
			return ErrNameTaken
		}
	}

	*regs = append(*regs, registration{name: name, filter: filter, fn: fn})
	return nil
}

func unregister(regs *[]registration, name string) error {
	for i, reg := range *regs {
		if reg.name == name {
			*regs = append((*regs)[:i:i], (*regs)[i+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

func names(regs []registration) []string {
	out := make([]string, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg.name)
	}

	return out
}
