// Package protocol implements the framing used by eventmsg devices to exchange
// named events over arbitrary byte transports (serial, BLE, ESP-NOW, TCP).
//
// # This protocol aims to be
//
// - easy to implement on a microcontroller
// - parsable one byte at a time
// - bounded in memory
// - safe for arbitrary bytes in event names and payloads
//
// === Frame layout
//
//	```
//	SOH <header> STX <event name> US <event payload> EOT
//	```
//
// The header is six bytes before stuffing:
//
//	```
//	sender | receiver | group | flags | msgid hi | msgid lo
//	```
//
// - `Frame` - one complete SOH...EOT message.
// - `Header` - routing metadata. A receiver or group of 0xFF is a broadcast.
// - `Assembler` - reconstructs frames from a byte stream, one byte at a time.
// - `Encoder` - builds frames and assigns message ids.
//
// === Stuffing
//
// The five control bytes SOH (0x01), STX (0x02), US (0x1F), EOT (0x04) and ESC (0x1B)
// never appear literally inside header, name or payload content. Each occurrence is
// replaced by ESC followed by the byte XOR 0x20:
//
//	```
//	0x01      -> 0x1B 0x21
//	0x1B      -> 0x1B 0x3B
//	```
//
// Only unescaped control bytes delimit a frame, so a stuffed US inside an event name
// is content and not a separator.
//
// === Limits
//
// Event names are at most 32 bytes and payloads at most 2048 bytes, measured before
// stuffing. Exceeding either while assembling discards the frame.
//
// Note: the message id is advisory. Receivers decode it but do not use it for
//
//	ordering or duplicate detection.
package protocol
