package transport_test

import (
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/eventmsg/protocol"
	"github.com/luma/eventmsg/router"
	"github.com/luma/eventmsg/transport"
)

var _ = Describe("WebSocket", func() {
	var (
		h      *harness
		ws     *transport.WebSocket
		server *httptest.Server
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)

		h = newHarness()
		ws = transport.NewWebSocket(transport.Options{Sink: h.node})

		engine := gin.New()
		engine.GET("/ws", ws.Handle)
		server = httptest.NewServer(engine)
	})

	AfterEach(func() {
		Expect(ws.Close()).To(Succeed())
		server.Close()
		h.stop()
	})

	dial := func() *websocket.Conn {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		Expect(err).To(Succeed())
		return conn
	}

	It("delivers binary messages to the node", func() {
		conn := dial()
		defer conn.Close()

		frame := encode("PING", "hi")
		Expect(conn.WriteMessage(websocket.BinaryMessage, frame[:3])).To(Succeed())
		Expect(conn.WriteMessage(websocket.BinaryMessage, frame[3:])).To(Succeed())

		var ev router.Event
		Eventually(h.events).Should(Receive(&ev))
		Expect(ev.Name).To(Equal("PING"))
		Expect(ev.SourceName).To(HavePrefix("ws-"))
	})

	It("ignores text messages", func() {
		conn := dial()
		defer conn.Close()

		Expect(conn.WriteMessage(websocket.TextMessage, encode("TEXT", ""))).To(Succeed())
		Expect(conn.WriteMessage(websocket.BinaryMessage, encode("BIN", ""))).To(Succeed())

		var ev router.Event
		Eventually(h.events).Should(Receive(&ev))
		Expect(ev.Name).To(Equal("BIN"))
	})

	It("writes frames to connected clients", func() {
		conn := dial()
		defer conn.Close()
		Eventually(ws.Conns).Should(Equal(1))

		Expect(ws.Write(encode("NOTIFY", "1"))).To(Succeed())

		messageType, data, err := conn.ReadMessage()
		Expect(err).To(Succeed())
		Expect(messageType).To(Equal(websocket.BinaryMessage))

		var frames []protocol.Frame
		Expect(protocol.NewAssembler(protocol.DefaultLimits()).Process(data, func(f protocol.Frame) {
			frames = append(frames, f)
		})).To(Succeed())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Name).To(Equal("NOTIFY"))
	})

	It("removes the source when the client leaves", func() {
		conn := dial()
		Eventually(ws.Conns).Should(Equal(1))

		conn.Close()
		Eventually(ws.Conns).Should(Equal(0))
		Eventually(h.node.Registry().Sources).Should(BeEmpty())
	})

	It("turns clients away after Close", func() {
		Expect(ws.Close()).To(Succeed())

		conn := dial()
		defer conn.Close()

		_, _, err := conn.ReadMessage()
		Expect(err).To(HaveOccurred())
		Expect(ws.Conns()).To(Equal(0))
		Eventually(h.node.Registry().Sources).Should(BeEmpty())
	})
})
