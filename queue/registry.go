package queue

import (
	"math"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/protocol"
)

type Options struct {
	// Metrics, when set, receives the pushed and dropped packet counters.
	Metrics prometheus.Registerer

	Log *zap.Logger
}

type Registry struct {
	mu      sync.RWMutex
	sources map[protocol.SourceID]*sourceQueue
	names   map[string]protocol.SourceID
	nextID  uint32

	notify chan struct{}

	pushed  *prometheus.CounterVec
	dropped *prometheus.CounterVec

	log *zap.Logger
}

func NewRegistry(options Options) (*Registry, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{
		sources: make(map[protocol.SourceID]*sourceQueue),
		names:   make(map[string]protocol.SourceID),
		notify:  make(chan struct{}, 1),
		log:     log,

		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmsg",
			Subsystem: "queue",
			Name:      "pushed_total",
			Help:      "Total number of packets queued per source",
		}, []string{"source"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmsg",
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Total number of packets dropped because a source queue was full",
		}, []string{"source"}),
	}

	if options.Metrics != nil {
		if err := options.Metrics.Register(r.pushed); err != nil {
			return nil, err
		}

		if err := options.Metrics.Register(r.dropped); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// CreateSource adds a source whose queue holds capacity packets of at most
// packetSize bytes each.
func (r *Registry) CreateSource(name string, packetSize, capacity int) (protocol.SourceID, error) {
	if packetSize <= 0 || capacity <= 0 {
		return 0, ErrInvalidSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return 0, ErrSourceExists
	}

	id, ok := r.allocateID()
	if !ok {
		return 0, ErrTooManySources
	}

	r.sources[id] = newSourceQueue(id, name, packetSize, capacity)
	r.names[name] = id

	r.log.Debug("Created source",
		zap.Uint16("source", uint16(id)),
		zap.String("name", name),
		zap.Int("packetSize", packetSize),
		zap.Int("capacity", capacity))

	return id, nil
}

// RemoveSource drops a source and any packets still queued on it.
func (r *Registry) RemoveSource(id protocol.SourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.sources[id]
	if !ok {
		return ErrUnknownSource
	}

	delete(r.sources, id)
	delete(r.names, q.name)

	r.pushed.DeleteLabelValues(q.name)
	r.dropped.DeleteLabelValues(q.name)

	return nil
}

func (r *Registry) SourceName(id protocol.SourceID) (string, bool) {
	q, ok := r.source(id)
	if !ok {
		return "", false
	}

	return q.name, true
}

// Lookup returns the id of the source called name.
func (r *Registry) Lookup(name string) (protocol.SourceID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.names[name]
	return id, ok
}

// Push queues data on a source. It never blocks; when the queue cannot hold all of
// data it is dropped and Push returns false.
func (r *Registry) Push(id protocol.SourceID, data []byte) bool {
	q, ok := r.source(id)
	if !ok {
		return false
	}

	if !q.push(data) {
		r.dropped.WithLabelValues(q.name).Inc()
		r.log.Debug("Source queue full, dropping data",
			zap.String("source", q.name),
			zap.Int("bytes", len(data)))

		return false
	}

	r.pushed.WithLabelValues(q.name).Inc()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes the oldest packet queued on a source.
func (r *Registry) TryPop(id protocol.SourceID) (Packet, bool) {
	q, ok := r.source(id)
	if !ok {
		return Packet{}, false
	}

	return q.tryPop()
}

// Drain pops every queued packet, source by source in id order, and passes it to
// fn. It returns the number of packets drained.
func (r *Registry) Drain(fn func(Packet)) int {
	count := 0

	for _, id := range r.Sources() {
		for {
			packet, ok := r.TryPop(id)
			if !ok {
				break
			}

			fn(packet)
			count++
		}
	}

	return count
}

// Sources returns the ids of every source in ascending order.
func (r *Registry) Sources() []protocol.SourceID {
	r.mu.RLock()
	ids := make([]protocol.SourceID, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Stats(id protocol.SourceID) (Stats, bool) {
	q, ok := r.source(id)
	if !ok {
		return Stats{}, false
	}

	return q.stats(), true
}

// Notify returns a channel that receives after data has been pushed. Pushes made
// while a notification is pending are coalesced into it.
func (r *Registry) Notify() <-chan struct{} {
	return r.notify
}

// allocateID returns the next unused id, wrapping around so ids of removed sources
// are eventually reused. The caller holds r.mu.
func (r *Registry) allocateID() (protocol.SourceID, bool) {
	for i := 0; i < math.MaxUint16; i++ {
		id := protocol.SourceID(r.nextID)
		r.nextID = (r.nextID + 1) % uint32(protocol.NoSource)

		if _, used := r.sources[id]; !used {
			return id, true
		}
	}

	return 0, false
}

func (r *Registry) source(id protocol.SourceID) (*sourceQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.sources[id]
	return q, ok
}
