package router

// The adapters below turn narrower callbacks into a HandlerFunc.

// Simple passes only the payload.
func Simple(fn func(payload string)) HandlerFunc {
	return func(ev *Event) {
		fn(ev.Text())
	}
}

// Basic passes the event name and payload.
func Basic(fn func(name, payload string)) HandlerFunc {
	return func(ev *Event) {
		fn(ev.Name, ev.Text())
	}
}

// Detailed passes the event name, payload and sender.
func Detailed(fn func(name, payload string, sender byte)) HandlerFunc {
	return func(ev *Event) {
		fn(ev.Name, ev.Text(), ev.Header.Sender)
	}
}

// Full passes the event name, payload, sender, receiver and flags.
func Full(fn func(name, payload string, sender, receiver, flags byte)) HandlerFunc {
	return func(ev *Event) {
		fn(ev.Name, ev.Text(), ev.Header.Sender, ev.Header.Receiver, ev.Header.Flags)
	}
}

// Raw passes the handler name and the payload bytes.
func Raw(fn func(handler string, payload []byte)) HandlerFunc {
	return func(ev *Event) {
		fn(ev.Handler, ev.Payload)
	}
}

// Named only invokes next for events called name.
func Named(name string, next HandlerFunc) HandlerFunc {
	return func(ev *Event) {
		if ev.Name == name {
			next(ev)
		}
	}
}
