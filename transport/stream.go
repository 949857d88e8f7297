package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/eventmsg/protocol"
)

// Stream carries frames over a single io.ReadWriteCloser such as a serial port,
// a pipe or a dialled connection.
type Stream struct {
	rwc    io.ReadWriteCloser
	sink   Sink
	source protocol.SourceID
	name   string

	packetSize int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	log *zap.Logger
}

// NewStream registers a source called name with sink and returns a Stream over rwc.
func NewStream(name string, rwc io.ReadWriteCloser, options Options) (*Stream, error) {
	id, err := options.Sink.CreateSource(name, options.packetSize(), options.queueCapacity())
	if err != nil {
		return nil, err
	}

	return &Stream{
		rwc:        rwc,
		sink:       options.Sink,
		source:     id,
		name:       name,
		packetSize: options.packetSize(),
		closed:     make(chan struct{}),
		log:        options.logger().Named("stream").With(zap.String("source", name)),
	}, nil
}

func (s *Stream) Source() protocol.SourceID {
	return s.source
}

// Run pushes everything read from the stream into the sink until the stream ends,
// it is closed, or ctx is cancelled. The stream is closed and its source removed
// when Run returns. Reaching EOF is not an error.
func (s *Stream) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		case <-done:
		}
	}()

	buf := make([]byte, s.packetSize)

	for {
		n, err := s.rwc.Read(buf)
		if n > 0 && !s.sink.Push(s.source, buf[:n]) {
			s.log.Warn("Source queue is full, dropped data", zap.Int("bytes", n))
		}

		if err != nil {
			if errors.Is(err, io.EOF) || s.isClosed() {
				return s.Close()
			}

			s.Close()
			return err
		}
	}
}

func (s *Stream) Write(frame []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.rwc.Write(frame)
	return err
}

func (s *Stream) WriteExcept(source protocol.SourceID, frame []byte) error {
	if source == s.source {
		return nil
	}

	return s.Write(frame)
}

// Close closes the underlying stream and removes its source.
func (s *Stream) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closed)

		err = s.rwc.Close()
		if rerr := s.sink.RemoveSource(s.source); rerr != nil && err == nil {
			err = rerr
		}
	})

	return err
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
