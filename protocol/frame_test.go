package protocol_test

import (
	"bytes"
	"io"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/eventmsg/protocol"
)

var _ = Describe("Encoder", func() {
	var encoder *protocol.Encoder

	BeforeEach(func() {
		encoder = protocol.NewEncoder(protocol.DefaultLimits(), 0)
	})

	It("lays out SOH, header, STX, name, US, payload, EOT", func() {
		h := protocol.Header{Sender: 0x01, Receiver: 0xFF, Group: 0x00, Flags: 0x00}

		frame, err := encoder.Encode("PING", []byte("hi"), h)
		Expect(err).To(Succeed())
		Expect(frame).To(Equal([]byte{
			protocol.SOH,
			protocol.ESC, 0x21, 0xFF, 0x00, 0x00, 0x00, 0x00,
			protocol.STX,
			'P', 'I', 'N', 'G',
			protocol.US,
			'h', 'i',
			protocol.EOT,
		}))
	})

	It("assigns increasing message ids and ignores the caller's", func() {
		for want := uint16(0); want < 3; want++ {
			frame, err := encoder.Encode("e", nil, protocol.Header{MessageID: 999})
			Expect(err).To(Succeed())

			frames, errs := feed(protocol.NewAssembler(protocol.DefaultLimits()), frame)
			Expect(errs).To(BeEmpty())
			Expect(frames[0].Header.MessageID).To(Equal(want))
		}
	})

	It("consumes a message id when encoding fails", func() {
		_, err := encoder.Encode(strings.Repeat("n", protocol.MaxEventNameSize+1), nil, protocol.Header{})
		Expect(err).To(MatchError(protocol.ErrNameTooLong))

		frame, err := encoder.Encode("e", nil, protocol.Header{})
		Expect(err).To(Succeed())

		frames, _ := feed(protocol.NewAssembler(protocol.DefaultLimits()), frame)
		Expect(frames[0].Header.MessageID).To(Equal(uint16(1)))
	})

	It("rejects payloads over the limit", func() {
		_, err := encoder.Encode("e", bytes.Repeat([]byte{'p'}, protocol.MaxEventDataSize+1), protocol.Header{})
		Expect(err).To(MatchError(protocol.ErrPayloadTooLong))
	})

	It("fails with ErrBufferExhausted when the working buffer is too small", func() {
		small := protocol.NewEncoder(protocol.DefaultLimits(), 16)

		_, err := small.Encode("e", []byte("12345"), protocol.Header{})
		Expect(err).To(Succeed())

		_, err = small.Encode("e", []byte{protocol.SOH, protocol.SOH, protocol.SOH}, protocol.Header{})
		Expect(err).To(MatchError(protocol.ErrBufferExhausted))
	})

	It("keeps the message id when encoding a whole frame", func() {
		frame, err := encoder.EncodeFrame(protocol.Frame{
			Header: protocol.Header{Sender: 9, MessageID: 0x0104},
			Name:   "relay",
		})
		Expect(err).To(Succeed())

		frames, errs := feed(protocol.NewAssembler(protocol.DefaultLimits()), frame)
		Expect(errs).To(BeEmpty())
		Expect(frames[0].Header.MessageID).To(Equal(uint16(0x0104)))
	})
})

var _ = Describe("Header", func() {
	It("marshals the message id big endian", func() {
		b, err := protocol.Header{Sender: 1, Receiver: 2, Group: 3, Flags: 4, MessageID: 0x0A0B}.MarshalBinary()
		Expect(err).To(Succeed())
		Expect(b).To(Equal([]byte{1, 2, 3, 4, 0x0A, 0x0B}))

		var h protocol.Header
		Expect(h.UnmarshalBinary(b)).To(Succeed())
		Expect(h.MessageID).To(Equal(uint16(0x0A0B)))
	})

	It("returns an error for short input", func() {
		_, err := protocol.ParseHeader([]byte{1, 2, 3})
		Expect(err).To(MatchError(protocol.ErrHeaderTooShort))
	})

	It("builds reply headers addressed to the original sender", func() {
		h := protocol.NewHeader(0x05, protocol.Broadcast, 0x10)
		Expect(h.IsBroadcast()).To(BeTrue())

		reply := h.Reply(0x01)
		Expect(reply.Sender).To(Equal(byte(0x01)))
		Expect(reply.Receiver).To(Equal(byte(0x05)))
		Expect(reply.Group).To(Equal(byte(0x00)))
	})
})

var _ = Describe("FrameReader / WriteEvent", func() {
	It("reads the frames written to a stream", func() {
		encoder := protocol.NewEncoder(protocol.DefaultLimits(), 0)
		buf := bytes.NewBuffer([]byte{})

		_, err := protocol.WriteEvent(buf, encoder, "one", []byte("1"), protocol.Header{})
		Expect(err).To(Succeed())
		_, err = protocol.WriteFrame(buf, encoder, protocol.Frame{Name: "two", Payload: []byte{protocol.EOT}})
		Expect(err).To(Succeed())

		reader := protocol.NewFrameReader(buf, protocol.DefaultLimits())

		frame, err := reader.ReadFrame()
		Expect(err).To(Succeed())
		Expect(frame.Name).To(Equal("one"))

		frame, err = reader.ReadFrame()
		Expect(err).To(Succeed())
		Expect(frame.Name).To(Equal("two"))
		Expect(frame.Payload).To(Equal([]byte{protocol.EOT}))

		_, err = reader.ReadFrame()
		Expect(err).To(MatchError(io.EOF))
	})

	It("does not write anything when encoding fails", func() {
		encoder := protocol.NewEncoder(protocol.DefaultLimits(), 0)
		buf := bytes.NewBuffer([]byte{})

		n, err := protocol.WriteEvent(buf, encoder, strings.Repeat("n", 40), nil, protocol.Header{})
		Expect(err).To(HaveOccurred())
		Expect(n).To(Equal(0))
		Expect(buf.Len()).To(Equal(0))
	})
})
