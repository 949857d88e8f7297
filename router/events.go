package router

// EventTable routes events to handlers by event name. It is meant to be registered
// as a single dispatcher for a device:
//
//	table := router.NewEventTable()
//	table.On("PING", onPing)
//	r.RegisterDispatcher("gateway", router.FilterFor(addr, group), table.Handle)
type EventTable struct {
	handlers map[string]HandlerFunc
}

func NewEventTable() *EventTable {
	return &EventTable{
		handlers: make(map[string]HandlerFunc),
	}
}

// On sets the handler for events called name, replacing any previous one.
func (t *EventTable) On(name string, fn HandlerFunc) {
	t.handlers[name] = fn
}

func (t *EventTable) Off(name string) {
	delete(t.handlers, name)
}

// Handle invokes the handler for ev's name, if there is one.
func (t *EventTable) Handle(ev *Event) {
	if fn, ok := t.handlers[ev.Name]; ok {
		fn(ev)
	}
}
