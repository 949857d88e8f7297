package protocol

import (
	"io"
)

// WriteEvent encodes an event with e and writes it to w in a single Write call.
func WriteEvent(w io.Writer, e *Encoder, name string, payload []byte, h Header) (int, error) {
	frame, err := e.Encode(name, payload, h)
	if err != nil {
		return 0, err
	}

	return w.Write(frame)
}

// WriteFrame writes f to w keeping its message id.
func WriteFrame(w io.Writer, e *Encoder, f Frame) (int, error) {
	frame, err := e.EncodeFrame(f)
	if err != nil {
		return 0, err
	}

	return w.Write(frame)
}
