package protocol

import (
	"fmt"
)

type State int

const (
	WaitingForStart State = iota
	ReadingHeader
	WaitingForSTX
	ReadingEventName
	ReadingEventData
)

func (s State) String() string {
	switch s {
	case WaitingForStart:
		return "WAITING_FOR_START"
	case ReadingHeader:
		return "READING_HEADER"
	case WaitingForSTX:
		return "WAITING_FOR_STX"
	case ReadingEventName:
		return "READING_EVENT_NAME"
	case ReadingEventData:
		return "READING_EVENT_DATA"
	default:
		return "UNKNOWN"
	}
}

// Assembler reconstructs frames from a byte stream. Each input stream needs its own
// Assembler; it holds the partially assembled frame between calls.
//
// An Assembler is not safe for concurrent use.
type Assembler struct {
	limits Limits

	state   State
	escaped bool

	header    [HeaderSize]byte
	headerLen int
	name      []byte
	payload   []byte

	violations uint64
}

func NewAssembler(limits Limits) *Assembler {
	limits = limits.orDefault()

	return &Assembler{
		limits:  limits,
		name:    make([]byte, 0, limits.MaxEventName),
		payload: make([]byte, 0, 256),
	}
}

func (a *Assembler) State() State {
	return a.state
}

// Violations returns how many frames have been discarded because of a protocol
// violation since the Assembler was created. Reset does not clear it.
func (a *Assembler) Violations() uint64 {
	return a.violations
}

// Reset discards any partially assembled frame.
func (a *Assembler) Reset() {
	a.state = WaitingForStart
	a.escaped = false
	a.headerLen = 0
	a.name = a.name[:0]
	a.payload = a.payload[:0]
}

// Feed consumes one raw byte. It returns a frame when b completes one, and an error
// wrapping ErrProtocolViolation when b breaks the frame in progress. After a
// violation the Assembler has already been reset and can be fed again.
func (a *Assembler) Feed(b byte) (*Frame, error) {
	escaped := false

	if a.escaped {
		b ^= EscapeMask
		a.escaped = false
		escaped = true
	} else if b == ESC {
		a.escaped = true
		return nil, nil
	}

	return a.step(b, escaped)
}

// Process feeds every byte of p, calling fn for each completed frame in order.
// Bytes after a violation are still processed, so a well formed frame later in p is
// delivered. The first violation is returned.
func (a *Assembler) Process(p []byte, fn func(Frame)) error {
	var first error

	for _, b := range p {
		frame, err := a.Feed(b)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}

		if frame != nil {
			fn(*frame)
		}
	}

	return first
}

func (a *Assembler) step(b byte, escaped bool) (*Frame, error) {
	// Only unescaped control bytes delimit, escaped ones are content.
	control := !escaped && IsControl(b)

	switch a.state {
	case WaitingForStart:
		if control && b == SOH {
			a.state = ReadingHeader
			a.headerLen = 0
		}

	case ReadingHeader:
		if control {
			return nil, a.violation(b, control, ErrUnexpectedControl)
		}

		a.header[a.headerLen] = b
		a.headerLen++

		if a.headerLen == HeaderSize {
			a.state = WaitingForSTX
		}

	case WaitingForSTX:
		if !control || b != STX {
			return nil, a.violation(b, control, ErrExpectedSTX)
		}

		a.state = ReadingEventName
		a.name = a.name[:0]

	case ReadingEventName:
		if control {
			if b != US {
				return nil, a.violation(b, control, ErrUnexpectedControl)
			}

			a.state = ReadingEventData
			a.payload = a.payload[:0]
			return nil, nil
		}

		if len(a.name) >= a.limits.MaxEventName {
			return nil, a.violation(b, control, ErrNameOverflow)
		}

		a.name = append(a.name, b)

	case ReadingEventData:
		if control {
			if b != EOT {
				return nil, a.violation(b, control, ErrUnexpectedControl)
			}

			frame := a.frame()
			a.Reset()

			return frame, nil
		}

		if len(a.payload) >= a.limits.MaxEventData {
			return nil, a.violation(b, control, ErrPayloadOverflow)
		}

		a.payload = append(a.payload, b)
	}

	return nil, nil
}

// violation resets the assembler. An unescaped SOH that broke the previous frame
// starts the next one.
func (a *Assembler) violation(b byte, control bool, err error) error {
	state := a.state
	a.Reset()
	a.violations++

	if control && b == SOH {
		a.state = ReadingHeader
	}

	return fmt.Errorf("%w (byte 0x%02X in %s)", err, b, state)
}

func (a *Assembler) frame() *Frame {
	header, _ := ParseHeader(a.header[:])

	payload := make([]byte, len(a.payload))
	copy(payload, a.payload)

	return &Frame{
		Header:  header,
		Name:    string(a.name),
		Payload: payload,
	}
}
