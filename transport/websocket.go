package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/protocol"
)

const wsWriteTimeout = 5 * time.Second

// WebSocket serves peers over websockets. Each binary message is raw protocol
// bytes, frames may span messages.
type WebSocket struct {
	options  Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[protocol.SourceID]*wsClient
	closed  bool
	wg      sync.WaitGroup

	log *zap.Logger
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebSocket(options Options) *WebSocket {
	return &WebSocket{
		options: options,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[protocol.SourceID]*wsClient),
		log:     options.logger().Named("websocket"),
	}
}

// Handle upgrades the request and reads from the peer until it disconnects.
func (w *WebSocket) Handle(c *gin.Context) {
	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	name := "ws-" + uuid.NewString()
	id, err := w.options.Sink.CreateSource(name, w.options.packetSize(), w.options.queueCapacity())
	if err != nil {
		w.log.Warn("Rejected connection", zap.Error(err))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.log.Debug("Rejected connection", zap.Error(ErrClosed))
		conn.Close()
		w.options.Sink.RemoveSource(id)
		return
	}

	w.clients[id] = client
	w.wg.Add(1)
	w.mu.Unlock()

	defer w.wg.Done()
	defer w.remove(id)

	log := w.log.With(zap.String("source", name))
	log.Debug("Client connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Client read failed", zap.Error(err))
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		if !w.options.Sink.Push(id, data) {
			log.Warn("Source queue is full, dropped message", zap.Int("bytes", len(data)))
		}
	}
}

func (w *WebSocket) Write(frame []byte) error {
	return w.WriteExcept(protocol.NoSource, frame)
}

func (w *WebSocket) WriteExcept(source protocol.SourceID, frame []byte) (err error) {
	w.mu.Lock()
	clients := make([]*wsClient, 0, len(w.clients))
	for id, client := range w.clients {
		if id != source {
			clients = append(clients, client)
		}
	}
	w.mu.Unlock()

	for _, client := range clients {
		err = multierr.Append(err, client.write(frame))
	}

	return err
}

func (w *WebSocket) Conns() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.clients)
}

// Close disconnects every client and waits for their handlers to return. Clients
// connecting after Close are turned away.
func (w *WebSocket) Close() (err error) {
	w.mu.Lock()
	w.closed = true
	for _, client := range w.clients {
		err = multierr.Append(err, client.conn.Close())
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

func (w *WebSocket) remove(id protocol.SourceID) {
	w.mu.Lock()
	client, ok := w.clients[id]
	delete(w.clients, id)
	w.mu.Unlock()

	if ok {
		client.conn.Close()
	}

	if err := w.options.Sink.RemoveSource(id); err != nil {
		w.log.Warn("Failed to remove source", zap.Error(err))
	}
}

func (c *wsClient) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}
