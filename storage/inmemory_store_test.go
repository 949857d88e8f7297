package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/eventmsg/protocol"
	"github.com/luma/eventmsg/router"
	"github.com/luma/eventmsg/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var store *storage.InmemoryStore

	BeforeEach(func() {
		store = storage.NewInmemoryStore(nil)
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			store.ListenToUpdates()

			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes update channels", func() {
			updateChan := store.ListenToUpdates()
			Expect(store.Close()).To(Succeed())
			Eventually(updateChan).Should(BeClosed())
		})
	})

	It("an empty inmemory store equals {}", func() {
		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			err := store.Set(context.Background(), "foo", "bar")
			Expect(err).To(Succeed())

			value, err := store.Get(context.Background(), "foo")
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`"bar"`))

			backup, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(backup)).To(Equal(`{"foo":"bar"}`))
		})

		It("reports missing keys", func() {
			_, err := store.Get(context.Background(), "missing")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("sends on the update channel when values are set", func() {
			updateChan := store.ListenToUpdates()
			err := store.Set(context.Background(), "foo", "bar")
			Expect(err).To(Succeed())

			var update *storage.Update
			Eventually(updateChan).Should(Receive(&update))
			Expect(update).To(Equal(&storage.Update{
				Key:   "foo",
				Value: []byte(`"bar"`),
			}))
		})
	})

	Describe("Restore()", func() {
		It("replaces the values", func() {
			Expect(store.Restore([]byte(`{"foo":{"bar":1}}`))).To(Succeed())

			value, err := store.Get(context.Background(), "foo.bar")
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`1`))
		})

		It("rejects invalid JSON", func() {
			Expect(store.Restore([]byte(`{"foo":`))).To(MatchError(storage.ErrInvalidJSON))
		})
	})

	Describe("Record()", func() {
		event := func(sender byte, name string, payload []byte) *router.Event {
			h := protocol.NewHeader(sender, 0x02, 0x07)
			h.MessageID = 42
			h.Flags = 0x01

			return &router.Event{
				SourceName: "uart",
				Name:       name,
				Payload:    payload,
				Header:     h,
			}
		}

		It("stores the last value of each event per sender", func() {
			store.Record(event(0x0A, "TEMP", []byte("20.5")))
			store.Record(event(0x0A, "TEMP", []byte("21.0")))
			store.Record(event(0x0B, "TEMP", []byte("19.0")))

			value, err := store.Get(context.Background(), storage.EventKey(0x0A, "TEMP"))
			Expect(err).To(Succeed())

			record := gjson.ParseBytes(value)
			Expect(record.Get("payload").String()).To(Equal("21.0"))
			Expect(record.Get("receiver").Int()).To(BeEquivalentTo(2))
			Expect(record.Get("group").Int()).To(BeEquivalentTo(7))
			Expect(record.Get("flags").Int()).To(BeEquivalentTo(1))
			Expect(record.Get("msgId").Int()).To(BeEquivalentTo(42))
			Expect(record.Get("source").String()).To(Equal("uart"))
			Expect(record.Get("encoding").Exists()).To(BeFalse())

			other, err := store.Device(context.Background(), 0x0B)
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(other, "TEMP.payload").String()).To(Equal("19.0"))
		})

		It("keeps names with path characters intact", func() {
			store.Record(event(0x01, "a.b*c", []byte("x")))

			device, err := store.Device(context.Background(), 0x01)
			Expect(err).To(Succeed())
			Expect(gjson.ParseBytes(device).Map()).To(HaveKey("a.b*c"))
		})

		It("encodes binary payloads as base64", func() {
			store.Record(event(0x01, "BIN", []byte{0xFF, 0xFE, protocol.SOH}))

			value, err := store.Get(context.Background(), storage.EventKey(0x01, "BIN"))
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(value, "encoding").String()).To(Equal("base64"))
			Expect(gjson.GetBytes(value, "payload").String()).To(Equal("//4B"))
		})

		It("publishes an update", func() {
			updateChan := store.ListenToUpdates()
			store.Record(event(0x0A, "TEMP", []byte("20.5")))

			var update *storage.Update
			Eventually(updateChan).Should(Receive(&update))
			Expect(update.Key).To(Equal("devices.0a.TEMP"))
		})
	})
})
