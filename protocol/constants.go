package protocol

// Control bytes
const (
	SOH byte = 0x01 // start of header
	STX byte = 0x02 // start of text, ends the header
	US  byte = 0x1F // unit separator, ends the event name
	EOT byte = 0x04 // end of transmission, ends the payload
	ESC byte = 0x1B // escape, the next byte is XORed with EscapeMask

	EscapeMask byte = 0x20
)

const (
	// Broadcast as a receiver or group matches every device.
	Broadcast byte = 0xFF

	// HeaderSize is the size of the header before stuffing.
	HeaderSize = 6

	MaxEventNameSize = 32
	MaxEventDataSize = 2048

	// markers counts SOH, STX, US and EOT
	markers = 4
)

// SourceID identifies a logical input stream. Every source has its own Assembler.
type SourceID uint16

// NoSource is never assigned to a source.
const NoSource SourceID = 0xFFFF

// IsControl reports whether b must be stuffed when it appears in frame content.
func IsControl(b byte) bool {
	switch b {
	case SOH, STX, US, EOT, ESC:
		return true

	default:
		return false
	}
}

// Limits bounds the memory used to assemble and encode a frame.
type Limits struct {
	MaxEventName int
	MaxEventData int
}

func DefaultLimits() Limits {
	return Limits{
		MaxEventName: MaxEventNameSize,
		MaxEventData: MaxEventDataSize,
	}
}

// MaxFrameSize is the largest encoded frame these limits allow, with every content
// byte stuffed. The encoder uses it as the capacity of its working buffer.
func (l Limits) MaxFrameSize() int {
	return markers + 2*(HeaderSize+l.MaxEventName+l.MaxEventData)
}

func (l Limits) orDefault() Limits {
	d := DefaultLimits()

	if l.MaxEventName <= 0 {
		l.MaxEventName = d.MaxEventName
	}

	if l.MaxEventData <= 0 {
		l.MaxEventData = d.MaxEventData
	}

	return l
}
