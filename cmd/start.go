package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/bridge"
	"github.com/luma/eventmsg/internal/env"
	"github.com/luma/eventmsg/node"
	"github.com/luma/eventmsg/queue"
	"github.com/luma/eventmsg/storage"
	"github.com/luma/eventmsg/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for tcp clients on
	port int
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 7363, "The port to listen for device connections on")
	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an eventmsg bridge",
	Long: `Start an eventmsg bridge

The bridge accepts devices over TCP and websockets, answers PING and DISCOVER,
relays frames between devices and records the last value of every event.

Usage
	eventmsg start --config bridge.toml

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configPath)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		metrics := prometheus.NewRegistry()
		metrics.MustRegister(collectors.NewGoCollector())

		registry, err := queue.NewRegistry(queue.Options{
			Metrics: metrics,
			Log:     log.Named("queue"),
		})
		if err != nil {
			return err
		}

		n, err := node.New(node.Options{
			Registry:      registry,
			Limits:        conf.Limits(),
			Addr:          conf.Addr,
			Group:         conf.Group,
			EnforceSender: conf.EnforceSender,
			Metrics:       metrics,
			Log:           log.Named("node"),
		})
		if err != nil {
			return err
		}

		transportOptions := transport.Options{
			Host:          host,
			Port:          port,
			Reuseport:     true,
			PacketSize:    conf.PacketSize,
			QueueCapacity: conf.QueueCapacity,
			Sink:          n,
			Log:           log.Named("transport"),
		}

		tcp := transport.NewTCP(transportOptions)
		ws := transport.NewWebSocket(transportOptions)
		writers := transport.Group{tcp, ws}

		if conf.Serial != "" {
			stream, err := openSerial(ctx, conf.Serial, transportOptions, log)
			if err != nil {
				return err
			}
			defer stream.Close()

			writers = append(writers, stream)
		}

		n.SetWriter(writers.Write)

		store := storage.NewInmemoryStore(log.Named("store"))
		defer store.Close()

		gatewayOptions := bridge.Options{
			Node:     n,
			Name:     conf.Name,
			Limits:   conf.Limits(),
			Recorder: store,
			Prefix:   conf.NATSPrefix,
			Log:      log.Named("gateway"),
		}

		if conf.Relay {
			gatewayOptions.Relay = writers
		}

		if conf.NATSURL != "" {
			nc, err := nats.Connect(conf.NATSURL,
				nats.Name(conf.Name),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(2*time.Second))
			if err != nil {
				return err
			}
			defer nc.Drain()

			gatewayOptions.Publisher = nc
			log.Info("Publishing events to NATS",
				zap.String("url", conf.NATSURL),
				zap.String("prefix", conf.NATSPrefix))
		}

		if _, err := bridge.New(gatewayOptions); err != nil {
			return err
		}

		router := setupRouter(conf.DebugHTTP, log)
		Routes(router, Bridge{
			Node:      n,
			Store:     store,
			Metrics:   metrics,
			WebSocket: ws.Handle,
		})

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			n.Run(ctx)
		}()

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := ws.Close(); err != nil {
			log.Warn("Websocket clients did not close cleanly", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		<-runDone

		log.Info("Exiting")
		return nil
	},
}

func openSerial(ctx context.Context, path string, options transport.Options, log *zap.Logger) (*transport.Stream, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	stream, err := transport.NewStream("serial", f, options)
	if err != nil {
		f.Close()
		return nil, err
	}

	go func() {
		if err := stream.Run(ctx); err != nil {
			log.Error("Serial stream failed", zap.String("path", path), zap.Error(err))
		}
	}()

	return stream, nil
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
