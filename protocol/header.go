package protocol

import (
	"encoding/binary"
	"fmt"
)

// Header carries the routing metadata of a frame.
//
// MessageID travels on the wire but is assigned by the Encoder, any value set by the
// caller of Encode is ignored.
type Header struct {
	Sender    byte
	Receiver  byte
	Group     byte
	Flags     byte
	MessageID uint16
}

// NewHeader returns a header sent from local to receiver within group.
func NewHeader(local, receiver, group byte) Header {
	return Header{
		Sender:   local,
		Receiver: receiver,
		Group:    group,
	}
}

// Reply returns a header that addresses the sender of h from local.
func (h Header) Reply(local byte) Header {
	return Header{
		Sender:   local,
		Receiver: h.Sender,
	}
}

func (h Header) IsBroadcast() bool {
	return h.Receiver == Broadcast
}

func (h Header) String() string {
	return fmt.Sprintf("sender=0x%02X receiver=0x%02X group=0x%02X flags=0x%02X msgId=%d",
		h.Sender, h.Receiver, h.Group, h.Flags, h.MessageID)
}

// MarshalBinary returns the six unstuffed header bytes. The message id is big endian.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.appendTo(make([]byte, 0, HeaderSize)), nil
}

func (h Header) appendTo(b []byte) []byte {
	b = append(b, h.Sender, h.Receiver, h.Group, h.Flags, 0, 0)
	binary.BigEndian.PutUint16(b[len(b)-2:], h.MessageID)
	return b
}

func (h *Header) UnmarshalBinary(data []byte) error {
	parsed, err := ParseHeader(data)
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// ParseHeader decodes the six unstuffed header bytes.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrHeaderTooShort
	}

	return Header{
		Sender:    data[0],
		Receiver:  data[1],
		Group:     data[2],
		Flags:     data[3],
		MessageID: binary.BigEndian.Uint16(data[4:6]),
	}, nil
}
