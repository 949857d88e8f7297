package router

import "github.com/luma/eventmsg/protocol"

// Filter selects frames by address. Each field set to protocol.Broadcast matches any
// value.
type Filter struct {
	Receiver byte
	Sender   byte
	Group    byte
}

// AnyFilter matches every frame.
func AnyFilter() Filter {
	return Filter{
		Receiver: protocol.Broadcast,
		Sender:   protocol.Broadcast,
		Group:    protocol.Broadcast,
	}
}

// FilterFor matches frames addressed to receiver within group from any sender.
func FilterFor(receiver, group byte) Filter {
	return Filter{
		Receiver: receiver,
		Sender:   protocol.Broadcast,
		Group:    group,
	}
}

// Match reports whether h passes the filter. Receiver and group match when either
// side is protocol.Broadcast or both are equal. The sender is compared only when
// enforceSender is set, and a broadcast sender in the filter still matches any.
func (f Filter) Match(h protocol.Header, enforceSender bool) bool {
	if !matchAddr(f.Receiver, h.Receiver) {
		return false
	}

	if !matchAddr(f.Group, h.Group) {
		return false
	}

	if enforceSender && f.Sender != protocol.Broadcast && f.Sender != h.Sender {
		return false
	}

	return true
}

func matchAddr(filter, header byte) bool {
	return filter == protocol.Broadcast || header == protocol.Broadcast || filter == header
}
