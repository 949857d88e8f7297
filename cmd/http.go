package cmd

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/eventmsg/node"
	"github.com/luma/eventmsg/protocol"
	"github.com/luma/eventmsg/storage"
)

// Bridge is what the HTTP surface needs from a running bridge.
type Bridge struct {
	Node    *node.Node
	Store   *storage.InmemoryStore
	Metrics prometheus.Gatherer

	// WebSocket handles /ws when set.
	WebSocket gin.HandlerFunc
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping", "/metrics"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

// Routes registers the bridge's HTTP endpoints on r.
func Routes(r *gin.Engine, b Bridge) {
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(b.Metrics, promhttp.HandlerOpts{})))

	r.GET("/events", func(c *gin.Context) {
		values, err := b.Store.Backup()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		c.Data(http.StatusOK, "application/json", values)
	})

	r.GET("/events/:addr", func(c *gin.Context) {
		addr, err := strconv.ParseUint(c.Param("addr"), 16, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "addr must be a hex byte"})
			return
		}

		values, err := b.Store.Device(c, byte(addr))
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		c.Data(http.StatusOK, "application/json", values)
	})

	r.POST("/send", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || !gjson.ValidBytes(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be JSON"})
			return
		}

		req := gjson.ParseBytes(body)

		name := req.Get("name")
		if !name.Exists() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		receiver, ok := addrField(req, "receiver", protocol.Broadcast)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "receiver must be between 0 and 255"})
			return
		}

		group, ok := addrField(req, "group", 0)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group must be between 0 and 255"})
			return
		}

		n, err := b.Node.SendTo(name.String(), []byte(req.Get("payload").String()), receiver, group)
		switch {
		case errors.Is(err, protocol.ErrNameTooLong), errors.Is(err, protocol.ErrPayloadTooLong):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

		default:
			c.JSON(http.StatusOK, gin.H{"bytes": n})
		}
	})

	if b.WebSocket != nil {
		r.GET("/ws", b.WebSocket)
	}
}

func addrField(req gjson.Result, key string, fallback byte) (byte, bool) {
	v := req.Get(key)
	if !v.Exists() {
		return fallback, true
	}

	if v.Type != gjson.Number || v.Int() < 0 || v.Int() > 255 {
		return 0, false
	}

	return byte(v.Int()), true
}
