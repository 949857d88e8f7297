package bridge

import (
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/luma/eventmsg/router"
)

const DefaultPrefix = "eventmsg"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

var subjectEscaper = strings.NewReplacer(
	".", "_",
	"*", "_",
	">", "_",
	" ", "_",
	"\t", "_",
	"\r", "_",
	"\n", "_",
)

// Subject returns the NATS subject an event is published on.
func Subject(prefix string, ev *router.Event) string {
	name := subjectEscaper.Replace(ev.Name)
	if name == "" {
		name = "_"
	}

	return prefix + "." + hexAddr(ev.Header.Sender) + "." + name
}

// NewMsg builds the NATS message for ev. The payload is the body, the header fields
// travel as NATS headers.
func NewMsg(prefix string, ev *router.Event) *nats.Msg {
	msg := nats.NewMsg(Subject(prefix, ev))
	msg.Data = append([]byte(nil), ev.Payload...)

	msg.Header.Set("Event", ev.Name)
	msg.Header.Set("Sender", hexAddr(ev.Header.Sender))
	msg.Header.Set("Receiver", hexAddr(ev.Header.Receiver))
	msg.Header.Set("Group", hexAddr(ev.Header.Group))
	msg.Header.Set("Flags", hexAddr(ev.Header.Flags))
	msg.Header.Set("Msg-Id", strconv.Itoa(int(ev.Header.MessageID)))
	msg.Header.Set("Source", ev.SourceName)

	return msg
}

func hexAddr(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
