package storage

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/luma/eventmsg/router"
)

// EventRecord is the last value stored for an event, under devices.<sender>.<event>.
type EventRecord struct {
	Payload string `json:"payload"`

	// Encoding is "base64" when the payload is not valid UTF-8.
	Encoding string `json:"encoding,omitempty"`

	Receiver  byte   `json:"receiver"`
	Group     byte   `json:"group"`
	Flags     byte   `json:"flags"`
	MessageID uint16 `json:"msgId"`
	Source    string `json:"source"`
}

func NewEventRecord(ev *router.Event) EventRecord {
	record := EventRecord{
		Receiver:  ev.Header.Receiver,
		Group:     ev.Header.Group,
		Flags:     ev.Header.Flags,
		MessageID: ev.Header.MessageID,
		Source:    ev.SourceName,
	}

	if utf8.Valid(ev.Payload) {
		record.Payload = string(ev.Payload)
	} else {
		record.Payload = base64.StdEncoding.EncodeToString(ev.Payload)
		record.Encoding = "base64"
	}

	return record
}

// DeviceKey is the key holding every event recorded from addr.
func DeviceKey(addr byte) string {
	return fmt.Sprintf("devices.%02x", addr)
}

// EventKey is the key holding the last name event recorded from addr.
func EventKey(addr byte, name string) string {
	return DeviceKey(addr) + "." + escapePath(name)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`!`, `\!`,
	`=`, `\=`,
	`<`, `\<`,
	`>`, `\>`,
	`%`, `\%`,
	`:`, `\:`,
)

// escapePath escapes the characters gjson and sjson treat as path syntax.
func escapePath(name string) string {
	return pathEscaper.Replace(name)
}
