// Package aggregate folds decoded sFlow samples into the three in-memory
// counter tables the HTTP surface reports: per source IP, per (agent,
// sample kind), and per flow key.
package aggregate

import "fmt"

// Counter is a pair of monotonic counters. The zero value is the starting
// point for every key the tables have not yet seen.
type Counter struct {
	Packets uint64
	Bytes   uint64
}

// String renders a Counter in a compact debug form for log output. The
// JSON response path does not use it; it encodes Counter's fields
// directly.
func (c Counter) String() string {
	return fmt.Sprintf("packets=%d,bytes=%d", c.Packets, c.Bytes)
}

// Add folds delta into c in place.
func (c *Counter) Add(packets, bytes uint64) {
	c.Packets += packets
	c.Bytes += bytes
}

// FlowKey identifies one entry in the flow table: the Ethernet endpoints
// of a sampled frame, its VLAN (0 if none was seen), and its protocol.
//
// Protocol is always the L2 ethertype. IPv4Flow and IPv6Flow records
// never overwrite it — only RawPacketHeader and EthernetFrame do, and
// whichever of those is walked last wins. See CollectFlow.
type FlowKey struct {
	SrcMAC   [6]byte
	DstMAC   [6]byte
	VLAN     uint32
	Protocol uint32
}
