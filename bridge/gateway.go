package bridge

import (
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/internal/meta"
	"github.com/luma/eventmsg/node"
	"github.com/luma/eventmsg/protocol"
	"github.com/luma/eventmsg/router"
	"github.com/luma/eventmsg/transport"
)

const (
	EventPing             = "PING"
	EventPong             = "PONG"
	EventDiscover         = "DISCOVER"
	EventDiscoverResponse = "DISCOVER_RESPONSE"
)

// Recorder keeps the last value of observed events. *storage.InmemoryStore is one.
type Recorder interface {
	Record(ev *router.Event)
}

type Options struct {
	Node *node.Node

	// Name is reported in DISCOVER_RESPONSE.
	Name string

	Limits protocol.Limits

	// Recorder, when set, sees every frame.
	Recorder Recorder

	// Relay, when set, receives every frame not addressed only to the bridge, except
	// on the connection it arrived from.
	Relay transport.Writer

	// Publisher, when set, receives every frame under Prefix.
	Publisher Publisher
	Prefix    string

	Log *zap.Logger
}

type Gateway struct {
	node    *node.Node
	name    string
	encoder *protocol.Encoder
	table   *router.EventTable

	relay     transport.Writer
	publisher Publisher
	prefix    string

	log *zap.Logger
}

// New registers the gateway's handlers on options.Node. The dispatcher is bound to
// the node's address at the time New is called.
func New(options Options) (*Gateway, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	prefix := options.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	g := &Gateway{
		node:      options.Node,
		name:      options.Name,
		encoder:   protocol.NewEncoder(options.Limits, 0),
		table:     router.NewEventTable(),
		relay:     options.Relay,
		publisher: options.Publisher,
		prefix:    prefix,
		log:       log,
	}

	g.table.On(EventPing, g.onPing)
	g.table.On(EventDiscover, g.onDiscover)

	n := options.Node

	if options.Recorder != nil {
		if err := n.RegisterRawHandler("store", router.AnyFilter(), options.Recorder.Record); err != nil {
			return nil, err
		}
	}

	if g.publisher != nil {
		if err := n.RegisterRawHandler("nats", router.AnyFilter(), g.publish); err != nil {
			return nil, err
		}
	}

	if g.relay != nil {
		if err := n.RegisterRawHandler("relay", router.AnyFilter(), g.forward); err != nil {
			return nil, err
		}
	}

	if err := n.RegisterDispatcher("gateway", router.FilterFor(n.Addr(), protocol.Broadcast), g.table.Handle); err != nil {
		return nil, err
	}

	if err := n.SetUnhandledHandler("unhandled", router.AnyFilter(), g.unhandled); err != nil {
		return nil, err
	}

	return g, nil
}

// On adds a handler for events addressed to the bridge.
func (g *Gateway) On(name string, fn router.HandlerFunc) {
	g.table.On(name, fn)
}

func (g *Gateway) onPing(ev *router.Event) {
	if _, err := g.node.Reply(ev, EventPong, ev.Payload); err != nil {
		g.log.Warn("Failed to reply to PING", zap.Error(err))
	}
}

func (g *Gateway) onDiscover(ev *router.Event) {
	info := meta.GetInfo()

	payload, _ := sjson.SetBytes(nil, "name", g.name)
	payload, _ = sjson.SetBytes(payload, "version", info.Version)
	payload, _ = sjson.SetBytes(payload, "addr", g.node.Addr())
	payload, _ = sjson.SetBytes(payload, "group", g.node.Group())

	if _, err := g.node.Reply(ev, EventDiscoverResponse, payload); err != nil {
		g.log.Warn("Failed to reply to DISCOVER", zap.Error(err))
	}
}

func (g *Gateway) publish(ev *router.Event) {
	if err := g.publisher.PublishMsg(NewMsg(g.prefix, ev)); err != nil {
		g.log.Warn("Failed to publish event",
			zap.String("event", ev.Name),
			zap.Error(err))
	}
}

func (g *Gateway) forward(ev *router.Event) {
	// Frames for the bridge alone go no further
	if ev.Header.Receiver == g.node.Addr() {
		return
	}

	frame, err := g.encoder.EncodeFrame(ev.Frame())
	if err != nil {
		g.log.Warn("Failed to encode relayed frame", zap.Error(err))
		return
	}

	if err := g.relay.WriteExcept(ev.Source, frame); err != nil {
		g.log.Debug("Failed to relay frame",
			zap.String("source", ev.SourceName),
			zap.Error(err))
	}
}

func (g *Gateway) unhandled(ev *router.Event) {
	g.log.Debug("Unhandled event",
		zap.String("event", ev.Name),
		zap.String("source", ev.SourceName),
		zap.Stringer("header", ev.Header))
}
