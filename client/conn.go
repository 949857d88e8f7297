package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/eventmsg/node"
	"github.com/luma/eventmsg/protocol"
	"github.com/luma/eventmsg/router"
	"github.com/luma/eventmsg/transport"
)

const eventBufferSize = 255

var (
	ErrNotConnected = errors.New("Client is not connected")
	ErrDisconnected = errors.New("Client disconnected while waiting for a reply")
)

type Options struct {
	// Addr and Group identify the client on the bus.
	Addr  byte
	Group byte

	Limits protocol.Limits

	Log *zap.Logger
}

// Conn is a device on the far side of a TCP connection to a bridge.
type Conn struct {
	cancel context.CancelFunc
	done   chan struct{}

	node   *node.Node
	stream *transport.Stream

	events chan router.Event

	waitMu  sync.Mutex
	waiters map[uint64]*waiter
	nextID  uint64

	log *zap.Logger
}

type waiter struct {
	name  string
	reply chan router.Event
}

func New(options Options) (*Conn, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	n, err := node.New(node.Options{
		Addr:   options.Addr,
		Group:  options.Group,
		Limits: options.Limits,
		Log:    log.Named("node"),
	})
	if err != nil {
		return nil, err
	}

	c := &Conn{
		node:    n,
		events:  make(chan router.Event, eventBufferSize),
		waiters: make(map[uint64]*waiter),
		log:     log,
	}

	if err := n.RegisterRawHandler("client", router.AnyFilter(), c.receive); err != nil {
		return nil, err
	}

	return c, nil
}

// Node returns the node behind the connection, for registering handlers.
func (c *Conn) Node() *node.Node {
	return c.node
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	stream, err := transport.NewStream("bridge", conn, transport.Options{
		Sink: c.node,
		Log:  c.log,
	})
	if err != nil {
		conn.Close()
		return err
	}

	c.stream = stream
	c.node.SetWriter(stream.Write)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		if err := stream.Run(runCtx); err != nil {
			c.log.Warn("Connection to bridge failed", zap.Error(err))
		}

		// Wake every pending request
		cancel()
	}()

	go func() {
		defer close(c.done)
		c.node.Run(runCtx)
	}()

	return nil
}

func (c *Conn) Disconnect() error {
	if c.stream == nil {
		return ErrNotConnected
	}

	err := c.stream.Close()
	c.cancel()
	<-c.done

	return err
}

// Events returns every event received from the bridge. Events are dropped when the
// channel is not drained.
func (c *Conn) Events() <-chan router.Event {
	return c.events
}

func (c *Conn) Send(name string, payload []byte, receiver, group byte) (int, error) {
	if c.stream == nil {
		return 0, ErrNotConnected
	}

	return c.node.SendTo(name, payload, receiver, group)
}

// Request sends an event and waits for the first event called reply that is
// addressed to this client or broadcast.
func (c *Conn) Request(ctx context.Context, name string, payload []byte, h protocol.Header, reply string) (router.Event, error) {
	if c.stream == nil {
		return router.Event{}, ErrNotConnected
	}

	id, replyChan := c.createWaiter(reply)
	defer c.destroyWaiter(id)

	if _, err := c.node.Send(name, payload, h); err != nil {
		return router.Event{}, err
	}

	select {
	case ev := <-replyChan:
		return ev, nil

	case <-c.done:
		return router.Event{}, ErrDisconnected

	case <-ctx.Done():
		return router.Event{}, ctx.Err()
	}
}

// Ping broadcasts PING and waits for the first PONG.
func (c *Conn) Ping(ctx context.Context) (router.Event, error) {
	h := protocol.NewHeader(c.node.Addr(), protocol.Broadcast, 0)
	return c.Request(ctx, "PING", nil, h, "PONG")
}

func (c *Conn) receive(ev *router.Event) {
	received := *ev
	received.Payload = append([]byte(nil), ev.Payload...)

	if c.addressedToUs(received.Header) {
		c.waitMu.Lock()
		for id, w := range c.waiters {
			if w.name == received.Name {
				w.reply <- received
				delete(c.waiters, id)
			}
		}
		c.waitMu.Unlock()
	}

	select {
	case c.events <- received:
	default:
		c.log.Debug("Event channel is full, dropped event", zap.String("event", received.Name))
	}
}

// addressedToUs reports whether a frame may answer one of our requests. The bridge
// writes replies to every connection, so replies for other devices arrive here too.
func (c *Conn) addressedToUs(h protocol.Header) bool {
	return h.Receiver == c.node.Addr() || h.Receiver == protocol.Broadcast
}

func (c *Conn) createWaiter(name string) (uint64, <-chan router.Event) {
	reply := make(chan router.Event, 1)

	c.waitMu.Lock()
	defer c.waitMu.Unlock()

	c.nextID++
	c.waiters[c.nextID] = &waiter{name: name, reply: reply}

	return c.nextID, reply
}

func (c *Conn) destroyWaiter(id uint64) {
	c.waitMu.Lock()
	delete(c.waiters, id)
	c.waitMu.Unlock()
}
