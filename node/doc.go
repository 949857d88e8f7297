// Package node ties the protocol together into a single device endpoint.
//
// A Node owns one Assembler per source, a Router, and an Encoder. Transports push
// received bytes into the node's queue.Registry from any goroutine; a single
// consumer goroutine calls ProcessAll or Run, which assembles frames and invokes
// handlers synchronously. Handlers may call Send to reply, which re-enters the
// transport through the node's WriteFunc.
//
//	registry, _ := queue.NewRegistry(queue.Options{})
//	n, _ := node.New(node.Options{Registry: registry, Write: port.Write})
//	uart, _ := n.CreateSource("uart", 64, 16)
//
//	n.RegisterDispatcher("app", router.FilterFor(protocol.Broadcast, 0), onEvent)
//
//	go port.ReadInto(registry, uart)
//	n.Run(ctx)
package node
