// Package bridge turns a node into a gateway between transports.
//
// A Gateway answers PING and DISCOVER on behalf of the bridge, records every frame in
// a store, relays frames that are not addressed to the bridge between its transports,
// and optionally publishes every frame to NATS under
//
//	<prefix>.<sender>.<event>
//
// where sender is the two digit hex address of the sending device.
package bridge
