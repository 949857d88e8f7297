// Package queue decouples transport goroutines from the goroutine that parses and
// dispatches frames.
//
// Every source owns a fixed capacity ring of packets. Producers Push raw bytes from
// any goroutine; the consumer drains packets with TryPop or Drain. A push that does
// not fit is dropped rather than blocking the producer, and the drop is counted.
//
// A Registry is an ordinary value. Create one per protocol instance and hand it to
// both the transports and the node.
package queue
