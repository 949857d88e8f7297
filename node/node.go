package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/protocol"
	"github.com/luma/eventmsg/queue"
	"github.com/luma/eventmsg/router"
)

// WriteFunc hands a complete encoded frame to a transport.
type WriteFunc func(frame []byte) error

type Options struct {
	// Write is called synchronously by Send. It may also be set later with SetWriter.
	Write WriteFunc

	// Registry holds the source queues. A new one is created when nil.
	Registry *queue.Registry

	Limits protocol.Limits

	// BufferSize caps the size of an encoded frame. Zero fits the largest frame
	// Limits allow.
	BufferSize int

	// Addr and Group are the local identity used as the sender of SendTo.
	Addr  byte
	Group byte

	EnforceSender bool

	Metrics prometheus.Registerer

	Log *zap.Logger
}

type source struct {
	name      string
	assembler *protocol.Assembler
}

type Node struct {
	mu    sync.RWMutex
	addr  byte
	group byte
	write WriteFunc

	sourcesMu sync.RWMutex
	sources   map[protocol.SourceID]*source

	limits   protocol.Limits
	encoder  *protocol.Encoder
	router   *router.Router
	registry *queue.Registry

	metrics *nodeMetrics
	log     *zap.Logger
}

func New(options Options) (*Node, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	registry := options.Registry
	if registry == nil {
		var err error
		registry, err = queue.NewRegistry(queue.Options{Log: log.Named("queue")})
		if err != nil {
			return nil, err
		}
	}

	metrics, err := newNodeMetrics(options.Metrics)
	if err != nil {
		return nil, err
	}

	limits := options.Limits
	if limits == (protocol.Limits{}) {
		limits = protocol.DefaultLimits()
	}

	return &Node{
		addr:     options.Addr,
		group:    options.Group,
		write:    options.Write,
		sources:  make(map[protocol.SourceID]*source),
		limits:   limits,
		encoder:  protocol.NewEncoder(limits, options.BufferSize),
		router:   router.New(router.Options{EnforceSender: options.EnforceSender}),
		registry: registry,
		metrics:  metrics,
		log:      log,
	}, nil
}

func (n *Node) SetAddr(addr byte) {
	n.mu.Lock()
	n.addr = addr
	n.mu.Unlock()
}

func (n *Node) SetGroup(group byte) {
	n.mu.Lock()
	n.group = group
	n.mu.Unlock()
}

func (n *Node) Addr() byte {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.addr
}

func (n *Node) Group() byte {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.group
}

func (n *Node) SetWriter(write WriteFunc) {
	n.mu.Lock()
	n.write = write
	n.mu.Unlock()
}

func (n *Node) Registry() *queue.Registry {
	return n.registry
}

func (n *Node) Router() *router.Router {
	return n.router
}

// CreateSource adds an input stream with its own queue and Assembler.
func (n *Node) CreateSource(name string, packetSize, capacity int) (protocol.SourceID, error) {
	id, err := n.registry.CreateSource(name, packetSize, capacity)
	if err != nil {
		return 0, err
	}

	n.sourcesMu.Lock()
	n.sources[id] = &source{
		name:      name,
		assembler: protocol.NewAssembler(n.limits),
	}
	n.sourcesMu.Unlock()

	return id, nil
}

// RemoveSource discards a source, its queued packets and any partial frame.
func (n *Node) RemoveSource(id protocol.SourceID) error {
	n.sourcesMu.Lock()
	delete(n.sources, id)
	n.sourcesMu.Unlock()

	return n.registry.RemoveSource(id)
}

// Push queues bytes received on a source. It is safe to call from any goroutine.
func (n *Node) Push(id protocol.SourceID, data []byte) bool {
	return n.registry.Push(id, data)
}

func (n *Node) SourceName(id protocol.SourceID) (string, bool) {
	src, ok := n.source(id)
	if !ok {
		return "", false
	}

	return src.name, true
}

// Process feeds raw bytes received on a source through its Assembler and dispatches
// every completed frame. A protocol violation discards the frame in progress and is
// returned, frames later in data are still dispatched.
func (n *Node) Process(id protocol.SourceID, data []byte) error {
	src, ok := n.source(id)
	if !ok {
		return fmt.Errorf("%w: %d", queue.ErrUnknownSource, id)
	}

	violations := src.assembler.Violations()

	err := src.assembler.Process(data, func(frame protocol.Frame) {
		n.metrics.frames.Inc()
		n.router.Dispatch(id, src.name, frame)
	})

	if err != nil {
		n.metrics.protocolErrors.Add(float64(src.assembler.Violations() - violations))
		n.log.Debug("Discarded frame",
			zap.String("source", src.name),
			zap.Error(err))

		return fmt.Errorf("source %s: %w", src.name, err)
	}

	return nil
}

// ProcessAll drains every source queue through Process.
func (n *Node) ProcessAll() (err error) {
	n.registry.Drain(func(packet queue.Packet) {
		if perr := n.Process(packet.Source, packet.Data); perr != nil {
			err = multierr.Append(err, perr)
		}
	})

	return err
}

// Run processes queued data as it arrives until ctx is cancelled. It is the single
// consumer: handlers run on the goroutine that calls Run.
func (n *Node) Run(ctx context.Context) error {
	log := n.log.Named("run")

	// Data may have been queued before Run started.
	n.processAll(log)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-n.registry.Notify():
			n.processAll(log)
		}
	}
}

func (n *Node) processAll(log *zap.Logger) {
	if err := n.ProcessAll(); err != nil {
		log.Debug("Protocol errors while processing", zap.Error(err))
	}
}

// Send encodes an event and writes it through the transport. It returns the number
// of bytes written. Every call consumes a message id, including failed ones.
func (n *Node) Send(name string, payload []byte, h protocol.Header) (int, error) {
	frame, err := n.encoder.Encode(name, payload, h)
	if err != nil {
		n.metrics.sendErrors.Inc()
		return 0, err
	}

	return n.writeFrame(frame)
}

// Forward writes a received frame unchanged, keeping its header and message id.
func (n *Node) Forward(f protocol.Frame) (int, error) {
	frame, err := n.encoder.EncodeFrame(f)
	if err != nil {
		n.metrics.sendErrors.Inc()
		return 0, err
	}

	return n.writeFrame(frame)
}

func (n *Node) writeFrame(frame []byte) (int, error) {
	n.mu.RLock()
	write := n.write
	n.mu.RUnlock()

	if write == nil {
		n.metrics.sendErrors.Inc()
		return 0, ErrNoWriter
	}

	if err := write(frame); err != nil {
		n.metrics.sendErrors.Inc()
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	n.metrics.sent.Inc()
	return len(frame), nil
}

// SendTo sends an event from the local address.
func (n *Node) SendTo(name string, payload []byte, receiver, group byte) (int, error) {
	return n.Send(name, payload, protocol.NewHeader(n.Addr(), receiver, group))
}

// Reply sends an event back to the sender of ev.
func (n *Node) Reply(ev *router.Event, name string, payload []byte) (int, error) {
	return n.Send(name, payload, ev.Header.Reply(n.Addr()))
}

func (n *Node) RegisterDispatcher(name string, filter router.Filter, fn router.HandlerFunc) error {
	return n.router.RegisterDispatcher(name, filter, fn)
}

func (n *Node) UnregisterDispatcher(name string) error {
	return n.router.UnregisterDispatcher(name)
}

func (n *Node) RegisterRawHandler(name string, filter router.Filter, fn router.HandlerFunc) error {
	return n.router.RegisterRawHandler(name, filter, fn)
}

func (n *Node) UnregisterRawHandler(name string) error {
	return n.router.UnregisterRawHandler(name)
}

func (n *Node) SetUnhandledHandler(name string, filter router.Filter, fn router.HandlerFunc) error {
	return n.router.SetUnhandledHandler(name, filter, fn)
}

func (n *Node) ClearUnhandledHandler() {
	n.router.ClearUnhandledHandler()
}

func (n *Node) source(id protocol.SourceID) (*source, bool) {
	n.sourcesMu.RLock()
	defer n.sourcesMu.RUnlock()

	src, ok := n.sources[id]
	return src, ok
}
