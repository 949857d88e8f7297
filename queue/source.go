package queue

import (
	"sync"

	"github.com/luma/eventmsg/protocol"
)

// Packet is a chunk of raw bytes received on a source.
type Packet struct {
	Source protocol.SourceID
	Data   []byte
}

// Stats describes a single source queue.
type Stats struct {
	Name       string
	PacketSize int
	Capacity   int
	Depth      int

	Pushed  uint64
	Popped  uint64
	Dropped uint64
}

// sourceQueue is a ring of packets. One producer and one consumer may use it
// concurrently.
type sourceQueue struct {
	id         protocol.SourceID
	name       string
	packetSize int

	mu    sync.Mutex
	ring  []Packet
	head  int
	depth int

	pushed  uint64
	popped  uint64
	dropped uint64
}

func newSourceQueue(id protocol.SourceID, name string, packetSize, capacity int) *sourceQueue {
	return &sourceQueue{
		id:         id,
		name:       name,
		packetSize: packetSize,
		ring:       make([]Packet, capacity),
	}
}

// push copies data into as many packets as it needs. Either every packet is queued
// or none is.
func (q *sourceQueue) push(data []byte) bool {
	needed := (len(data) + q.packetSize - 1) / q.packetSize
	if needed == 0 {
		return true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ring)-q.depth < needed {
		q.dropped += uint64(needed)
		return false
	}

	for len(data) > 0 {
		n := len(data)
		if n > q.packetSize {
			n = q.packetSize
		}

		chunk := make([]byte, n)
		copy(chunk, data[:n])
		data = data[n:]

		tail := (q.head + q.depth) % len(q.ring)
		q.ring[tail] = Packet{Source: q.id, Data: chunk}
		q.depth++
		q.pushed++
	}

	return true
}

func (q *sourceQueue) tryPop() (Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.depth == 0 {
		return Packet{}, false
	}

	packet := q.ring[q.head]
	q.ring[q.head] = Packet{}
	q.head = (q.head + 1) % len(q.ring)
	q.depth--
	q.popped++

	return packet, true
}

func (q *sourceQueue) stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Name:       q.name,
		PacketSize: q.packetSize,
		Capacity:   len(q.ring),
		Depth:      q.depth,
		Pushed:     q.pushed,
		Popped:     q.popped,
		Dropped:    q.dropped,
	}
}
