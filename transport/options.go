package transport

import (
	"go.uber.org/zap"

	"github.com/luma/eventmsg/protocol"
)

const (
	DefaultPacketSize    = 256
	DefaultQueueCapacity = 32

	writeQueueSize = 127
)

// Sink receives the bytes read by a transport. Every connection becomes a source.
type Sink interface {
	CreateSource(name string, packetSize, capacity int) (protocol.SourceID, error)
	RemoveSource(id protocol.SourceID) error
	Push(id protocol.SourceID, data []byte) bool
}

// Writer fans encoded frames out to the peers of a transport.
type Writer interface {
	Write(frame []byte) error

	// WriteExcept writes to every peer other than the one behind source.
	WriteExcept(source protocol.SourceID, frame []byte) error
}

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Reuseport controls setting SO_REUSEPORT
	Reuseport bool

	NumListeners int

	// PacketSize and QueueCapacity size the queue of each connection.
	PacketSize    int
	QueueCapacity int

	Sink Sink

	Log *zap.Logger
}

func (o Options) packetSize() int {
	if o.PacketSize < 1 {
		return DefaultPacketSize
	}
	return o.PacketSize
}

func (o Options) queueCapacity() int {
	if o.QueueCapacity < 1 {
		return DefaultQueueCapacity
	}
	return o.QueueCapacity
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}
