package protocol_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/eventmsg/protocol"
)

// feed pushes data through a one byte at a time and collects the frames.
func feed(a *protocol.Assembler, data []byte) ([]protocol.Frame, []error) {
	var (
		frames []protocol.Frame
		errs   []error
	)

	for _, b := range data {
		frame, err := a.Feed(b)
		if err != nil {
			errs = append(errs, err)
		}

		if frame != nil {
			frames = append(frames, *frame)
		}
	}

	return frames, errs
}

// rawFrame builds a frame by hand from content that needs no stuffing.
func rawFrame(name, payload string) []byte {
	b := []byte{protocol.SOH, 0x10, 0x20, 0x30, 0x40, 0x00, 0x07, protocol.STX}
	b = append(b, name...)
	b = append(b, protocol.US)
	b = append(b, payload...)
	return append(b, protocol.EOT)
}

var _ = Describe("Assembler", func() {
	var (
		encoder   *protocol.Encoder
		assembler *protocol.Assembler
	)

	BeforeEach(func() {
		encoder = protocol.NewEncoder(protocol.DefaultLimits(), 0)
		assembler = protocol.NewAssembler(protocol.DefaultLimits())
	})

	encode := func(name string, payload []byte, h protocol.Header) []byte {
		frame, err := encoder.Encode(name, payload, h)
		Expect(err).To(Succeed())
		return frame
	}

	It("decodes a frame fed one byte at a time", func() {
		h := protocol.Header{Sender: 0x01, Receiver: protocol.Broadcast, Group: 0x00}

		frames, errs := feed(assembler, encode("PING", []byte("hi"), h))
		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Name).To(Equal("PING"))
		Expect(string(frames[0].Payload)).To(Equal("hi"))
		Expect(frames[0].Header.Sender).To(Equal(byte(0x01)))
		Expect(frames[0].Header.Receiver).To(Equal(protocol.Broadcast))
		Expect(assembler.State()).To(Equal(protocol.WaitingForStart))
	})

	It("decodes a hand built frame", func() {
		frames, errs := feed(assembler, rawFrame("temp", "21.5"))
		Expect(errs).To(BeEmpty())
		Expect(frames).To(ConsistOf(protocol.Frame{
			Header: protocol.Header{
				Sender: 0x10, Receiver: 0x20, Group: 0x30, Flags: 0x40, MessageID: 7,
			},
			Name:    "temp",
			Payload: []byte("21.5"),
		}))
	})

	It("round trips control bytes in the header, name and payload", func() {
		h := protocol.Header{Sender: protocol.SOH, Receiver: protocol.ESC, Group: protocol.US, Flags: protocol.EOT}
		name := "a\x1fb\x02c"
		payload := []byte{protocol.SOH, protocol.STX, protocol.US, protocol.EOT, protocol.ESC, 0x00, 0xFF}

		frames, errs := feed(assembler, encode(name, payload, h))
		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Name).To(Equal(name))
		Expect(frames[0].Payload).To(Equal(payload))
		Expect(frames[0].Header.Sender).To(Equal(protocol.SOH))
		Expect(frames[0].Header.Receiver).To(Equal(protocol.ESC))
		Expect(frames[0].Header.Group).To(Equal(protocol.US))
		Expect(frames[0].Header.Flags).To(Equal(protocol.EOT))
	})

	It("accepts names and payloads at the maximum length", func() {
		name := strings.Repeat("n", protocol.MaxEventNameSize)
		payload := bytes.Repeat([]byte{protocol.SOH}, protocol.MaxEventDataSize)

		frames, errs := feed(assembler, encode(name, payload, protocol.Header{}))
		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Name).To(Equal(name))
		Expect(frames[0].Payload).To(Equal(payload))
	})

	It("decodes empty names and payloads", func() {
		frames, errs := feed(assembler, encode("", nil, protocol.Header{}))
		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Name).To(BeEmpty())
		Expect(frames[0].Payload).To(BeEmpty())
	})

	It("ignores noise before SOH", func() {
		frames, errs := feed(assembler, append([]byte("noise\x02\x1f\x04"), rawFrame("a", "b")...))
		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(1))
	})

	Describe("protocol violations", func() {
		It("reports a missing STX and recovers on the next frame", func() {
			bad := []byte{protocol.SOH, 0x10, 0x20, 0x30, 0x40, 0x00, 0x07, 'X'}

			frames, errs := feed(assembler, bad)
			Expect(frames).To(BeEmpty())
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], protocol.ErrExpectedSTX)).To(BeTrue())
			Expect(errors.Is(errs[0], protocol.ErrProtocolViolation)).To(BeTrue())
			Expect(assembler.State()).To(Equal(protocol.WaitingForStart))

			frames, errs = feed(assembler, rawFrame("ok", "1"))
			Expect(errs).To(BeEmpty())
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Name).To(Equal("ok"))
		})

		It("rejects an escaped STX where a raw STX is expected", func() {
			bad := []byte{protocol.SOH, 0x10, 0x20, 0x30, 0x40, 0x00, 0x07, protocol.ESC, 0x22}

			_, errs := feed(assembler, bad)
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], protocol.ErrExpectedSTX)).To(BeTrue())
		})

		It("rejects a raw control byte inside the header", func() {
			_, errs := feed(assembler, []byte{protocol.SOH, 0x10, protocol.EOT})
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], protocol.ErrUnexpectedControl)).To(BeTrue())
			Expect(assembler.State()).To(Equal(protocol.WaitingForStart))
		})

		It("rejects a raw EOT inside the event name", func() {
			bad := []byte{protocol.SOH, 0x10, 0x20, 0x30, 0x40, 0x00, 0x07, protocol.STX, 'a', protocol.EOT}

			_, errs := feed(assembler, bad)
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], protocol.ErrUnexpectedControl)).To(BeTrue())
		})

		It("rejects event names longer than the limit", func() {
			_, errs := feed(assembler, rawFrame(strings.Repeat("n", protocol.MaxEventNameSize+1), "x"))
			Expect(errs).NotTo(BeEmpty())
			Expect(errors.Is(errs[0], protocol.ErrNameOverflow)).To(BeTrue())
		})

		It("rejects payloads longer than the limit", func() {
			_, errs := feed(assembler, rawFrame("big", strings.Repeat("p", protocol.MaxEventDataSize+1)))
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], protocol.ErrPayloadOverflow)).To(BeTrue())
		})

		It("honours custom limits", func() {
			small := protocol.NewAssembler(protocol.Limits{MaxEventName: 4, MaxEventData: 4})

			_, errs := feed(small, rawFrame("abcd", "12345"))
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], protocol.ErrPayloadOverflow)).To(BeTrue())

			frames, errs := feed(small, rawFrame("abcd", "1234"))
			Expect(errs).To(BeEmpty())
			Expect(frames).To(HaveLen(1))
		})

		It("resynchronises on a raw SOH that interrupts a frame", func() {
			truncated := rawFrame("lost", "payload")
			truncated = truncated[:len(truncated)-4]

			frames, errs := feed(assembler, append(truncated, rawFrame("kept", "1")...))
			Expect(errs).To(HaveLen(1))
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Name).To(Equal("kept"))
		})
	})

	Describe("Process()", func() {
		It("delivers frames that follow a violation in the same chunk", func() {
			chunk := append([]byte{protocol.SOH, 0x10, 0x20, 0x30, 0x40, 0x00, 0x07, 'X'}, rawFrame("after", "")...)

			var names []string
			err := assembler.Process(chunk, func(f protocol.Frame) {
				names = append(names, f.Name)
			})

			Expect(errors.Is(err, protocol.ErrExpectedSTX)).To(BeTrue())
			Expect(names).To(Equal([]string{"after"}))
		})

		It("counts every discarded frame in a chunk", func() {
			chunk := []byte{protocol.SOH, protocol.EOT, protocol.SOH, 0x10, protocol.US}

			err := assembler.Process(chunk, func(protocol.Frame) {})
			Expect(errors.Is(err, protocol.ErrUnexpectedControl)).To(BeTrue())
			Expect(assembler.Violations()).To(Equal(uint64(2)))

			assembler.Reset()
			Expect(assembler.Violations()).To(Equal(uint64(2)))
		})

		It("keeps partial frames between calls", func() {
			frame := rawFrame("split", "across calls")

			var count int
			Expect(assembler.Process(frame[:5], func(protocol.Frame) { count++ })).To(Succeed())
			Expect(count).To(Equal(0))
			Expect(assembler.State()).To(Equal(protocol.ReadingHeader))

			Expect(assembler.Process(frame[5:], func(protocol.Frame) { count++ })).To(Succeed())
			Expect(count).To(Equal(1))
		})
	})

	It("keeps interleaved streams apart when each has its own assembler", func() {
		other := protocol.NewAssembler(protocol.DefaultLimits())
		a := encode("first", []byte("one"), protocol.Header{Sender: 1})
		b := encode("second", []byte("two"), protocol.Header{Sender: 2})

		var fromA, fromB []protocol.Frame
		for i := 0; i < len(a) || i < len(b); i++ {
			if i < len(a) {
				f, err := assembler.Feed(a[i])
				Expect(err).To(Succeed())
				if f != nil {
					fromA = append(fromA, *f)
				}
			}

			if i < len(b) {
				f, err := other.Feed(b[i])
				Expect(err).To(Succeed())
				if f != nil {
					fromB = append(fromB, *f)
				}
			}
		}

		Expect(fromA).To(HaveLen(1))
		Expect(fromA[0].Name).To(Equal("first"))
		Expect(fromB).To(HaveLen(1))
		Expect(fromB[0].Name).To(Equal("second"))
	})
})
