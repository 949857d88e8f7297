package protocol

import (
	"bufio"
	"io"
)

// FrameReader reads frames from a byte stream.
//
// To avoid denial of service attacks, the Assembler bounds the size of each frame,
// so a peer can never make a FrameReader buffer more than the configured Limits.
type FrameReader struct {
	r *bufio.Reader
	a *Assembler
}

func NewFrameReader(r io.Reader, limits Limits) *FrameReader {
	return &FrameReader{
		r: bufio.NewReader(r),
		a: NewAssembler(limits),
	}
}

// ReadFrame blocks until a complete frame has been read. Protocol violations are
// returned as they happen; the reader has resynchronised and ReadFrame may be
// called again. Errors from the underlying reader are returned unchanged.
func (f *FrameReader) ReadFrame() (Frame, error) {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}

		frame, err := f.a.Feed(b)
		if err != nil {
			return Frame{}, err
		}

		if frame != nil {
			return *frame, nil
		}
	}
}
