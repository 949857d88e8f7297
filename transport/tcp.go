package transport

import (
	"context"
	"errors"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/protocol"
)

// TCP accepts peers on one or more listeners. Bytes read from each connection are
// pushed into the Sink under a source of its own, frames written to the TCP are
// fanned out to every connection.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr    string
	options Options

	numListeners int

	mu        sync.Mutex
	listeners []*TCPListener

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	// Several listeners can only share a port with SO_REUSEPORT.
	if !options.Reuseport {
		numListeners = 1
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		options:      options,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		log:          options.logger(),
	}
}

// Start opens every listener and returns once they accept connections.
func (w *TCP) Start(parentCtx context.Context) (err error) {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	addr := w.addr
	for i := 0; i < w.numListeners; i++ {
		listener, lerr := w.startListener(ctx, addr)
		if lerr != nil {
			err = multierr.Append(err, lerr)
			continue
		}

		// Port 0 picks a port for the first listener, the rest share it.
		addr = listener.Addr().String()
	}

	if len(w.listeners) == 0 {
		cancel()
		return err
	}

	if err != nil {
		w.log.Warn("Some listeners failed to start",
			zap.Int("running", len(w.listeners)),
			zap.Error(err))
	}

	return nil
}

// Addr returns the address of the first listener.
func (w *TCP) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

func (w *TCP) startListener(ctx context.Context, addr string) (*TCPListener, error) {
	var (
		ln  net.Listener
		err error
	)

	if w.options.Reuseport {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	listener := NewTCPListener(
		ctx,
		ln,
		w.options,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)
	w.listeners = append(w.listeners, listener)
	w.mu.Unlock()

	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			w.log.Error("Listener stopped accepting", zap.Error(err))
		}
	}()

	return listener, nil
}

// Write queues frame on every connection.
func (w *TCP) Write(frame []byte) error {
	return w.WriteExcept(protocol.NoSource, frame)
}

func (w *TCP) WriteExcept(source protocol.SourceID, frame []byte) (err error) {
	w.mu.Lock()
	listeners := append([]*TCPListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, listener := range listeners {
		err = multierr.Append(err, listener.WriteExcept(source, frame))
	}

	return err
}

// Conns returns the number of open connections.
func (w *TCP) Conns() (n int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, listener := range w.listeners {
		n += listener.Conns()
	}

	return n
}

// Close immediately closes all active listeners and connections.
func (w *TCP) Close() error {
	if w.cancel == nil {
		return ErrNotStarted
	}

	w.log.Info("Stopping TCP server")
	w.cancel()

	w.mu.Lock()
	listeners := append([]*TCPListener(nil), w.listeners...)
	w.mu.Unlock()

	var err error
	for _, listener := range listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("Listeners stopped")

	return err
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	options  Options
	log      *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}
	closed      bool

	loopWaiter sync.WaitGroup
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	options Options,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		options:     options,
		activeConns: make(map[*TCPConn]struct{}),
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting and closes every connection.
func (t *TCPListener) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	err := t.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	t.loopWaiter.Wait()
	return err
}

func (t *TCPListener) Listen() error {
	go func() {
		<-t.ctx.Done()

		if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
				// The listener was closed while we were waiting for new connections
				// that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			return err
		}

		tcpConn, err := t.accept(conn)
		if err != nil {
			t.log.Warn("Rejected connection",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			conn.Close()
			continue
		}

		go func() {
			defer t.loopWaiter.Done()

			tcpConn.Start()
			t.removeConn(tcpConn)
		}()
	}
}

func (t *TCPListener) accept(conn net.Conn) (*TCPConn, error) {
	name := "tcp-" + uuid.NewString()

	id, err := t.options.Sink.CreateSource(name, t.options.packetSize(), t.options.queueCapacity())
	if err != nil {
		return nil, err
	}

	tcpConn := NewTCPConn(t.ctx, conn, id, t.options, t.log.Named("conn").With(
		zap.String("source", name),
		zap.String("remote", conn.RemoteAddr().String()),
	))

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.options.Sink.RemoveSource(id)
		return nil, ErrClosed
	}

	t.activeConns[tcpConn] = struct{}{}
	t.loopWaiter.Add(1)

	return tcpConn, nil
}

func (t *TCPListener) WriteExcept(source protocol.SourceID, frame []byte) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn := range t.activeConns {
		if conn.Source() == source {
			continue
		}

		if werr := conn.Write(frame); werr != nil {
			err = multierr.Append(err, werr)
		}
	}

	return err
}

func (t *TCPListener) Conns() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.activeConns)
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	delete(t.activeConns, conn)
	t.mu.Unlock()

	if err := t.options.Sink.RemoveSource(conn.Source()); err != nil {
		t.log.Warn("Failed to remove source", zap.Error(err))
	}
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn   net.Conn
	source protocol.SourceID

	packetSize int
	sink       Sink

	writeQueue chan []byte

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn net.Conn,
	source protocol.SourceID,
	options Options,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		source:     source,
		packetSize: options.packetSize(),
		sink:       options.Sink,
		writeQueue: make(chan []byte, writeQueueSize),
		log:        log,
	}
}

func (t *TCPConn) Source() protocol.SourceID {
	return t.source
}

func (t *TCPConn) Close() error {
	var err error

	t.closeOnce.Do(func() {
		t.cancel()

		// Unblocks the read loop
		err = t.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})

	t.loopWaiter.Wait()
	return err
}

// Start runs the read and write loops until the peer disconnects or the
// connection is closed.
func (t *TCPConn) Start() {
	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
	t.Close()
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		// The peer is gone, stop the write loop too
		t.cancel()
		log.Debug("Read loop exited")
	}()

	buf := make([]byte, t.packetSize)

	for {
		n, err := t.conn.Read(buf)
		if n > 0 && !t.sink.Push(t.source, buf[:n]) {
			log.Warn("Source queue is full, dropped data", zap.Int("bytes", n))
		}

		if err != nil {
			if t.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) && !isDisconnect(err) {
				log.Warn("Failed to read from connection", zap.Error(err))
			}
			return
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer func() {
		if tcp, ok := t.conn.(*net.TCPConn); ok {
			err := tcp.CloseWrite()
			if err != nil && !errors.Is(err, net.ErrClosed) && !isDisconnect(err) {
				log.Warn("Failed to close writes on connection cleanly",
					zap.Error(err))
			}
		}

		log.Debug("Write loop exited")
	}()

	for {
		select {
		case <-t.ctx.Done():
			return

		case frame := <-t.writeQueue:
			if _, err := t.conn.Write(frame); err != nil {
				log.Warn("Failed to write frame", zap.Error(err))
				return
			}
		}
	}
}

// Write queues a frame for the write loop.
func (t *TCPConn) Write(frame []byte) error {
	if !t.isRunning() {
		return ErrClosed
	}

	select {
	case t.writeQueue <- frame:
		return nil
	default:
		return ErrWriteQueueFull
	}
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		return false

	default:
		return true
	}
}

func isDisconnect(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "transport endpoint is not connected")
}
