package protocol

import (
	"sync/atomic"
)

// Frame is one decoded SOH...EOT message.
type Frame struct {
	Header  Header
	Name    string
	Payload []byte
}

// Encoder builds frames and assigns their message ids.
//
// The message id is a send attempt counter: it advances on every call to Encode,
// including calls that fail, and wraps after 0xFFFF.
type Encoder struct {
	limits  Limits
	bufSize int

	msgID atomic.Uint32
}

// NewEncoder returns an Encoder whose working buffer holds bufferSize bytes. A
// bufferSize of zero or less sizes the buffer for the largest frame limits allow.
func NewEncoder(limits Limits, bufferSize int) *Encoder {
	limits = limits.orDefault()

	if bufferSize <= 0 {
		bufferSize = limits.MaxFrameSize()
	}

	return &Encoder{
		limits:  limits,
		bufSize: bufferSize,
	}
}

// Encode returns the wire form of an event. The header's MessageID is replaced
// with the next id from the counter.
func (e *Encoder) Encode(name string, payload []byte, h Header) ([]byte, error) {
	h.MessageID = e.nextID()

	return e.EncodeFrame(Frame{Header: h, Name: name, Payload: payload})
}

// EncodeFrame returns the wire form of f, keeping its message id. Relays use it to
// forward a frame unchanged.
func (e *Encoder) EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Name) > e.limits.MaxEventName {
		return nil, ErrNameTooLong
	}

	if len(f.Payload) > e.limits.MaxEventData {
		return nil, ErrPayloadTooLong
	}

	w := frameWriter{buf: make([]byte, e.bufSize)}

	var header [HeaderSize]byte
	f.Header.appendTo(header[:0])

	w.mark(SOH)
	w.stuff(header[:])
	w.mark(STX)
	w.stuff([]byte(f.Name))
	w.mark(US)
	w.stuff(f.Payload)
	w.mark(EOT)

	if w.err != nil {
		return nil, w.err
	}

	return w.buf[:w.n], nil
}

func (e *Encoder) nextID() uint16 {
	return uint16(e.msgID.Add(1) - 1)
}

// frameWriter fills a fixed buffer and latches the first error.
type frameWriter struct {
	buf []byte
	n   int
	err error
}

func (w *frameWriter) mark(b byte) {
	if w.err != nil {
		return
	}

	if w.n >= len(w.buf) {
		w.err = ErrBufferExhausted
		return
	}

	w.buf[w.n] = b
	w.n++
}

func (w *frameWriter) stuff(src []byte) {
	if w.err != nil {
		return
	}

	n, err := Stuff(w.buf[w.n:], src)
	if err != nil {
		w.err = err
		return
	}

	w.n += n
}
