package sflow

import "net"

// Sample type tags, as carried on the wire.
const (
	SampleTypeFlow            = 1
	SampleTypeCounter         = 2
	SampleTypeFlowExpanded    = 3
	SampleTypeCounterExpanded = 4
)

// Flow record tags, as carried on the wire.
const (
	RecordTagRawPacketHeader = 1
	RecordTagEthernetFrame   = 2
	RecordTagIPv4Flow        = 3
	RecordTagIPv6Flow        = 4
	RecordTagExtendedSwitch  = 1001
	RecordTagExtendedRouter  = 1002
)

// Datagram is a fully parsed sFlow v5 packet. It is transient: callers
// fold its samples into aggregate counters and discard it.
type Datagram struct {
	Version          uint32
	AgentAddressType uint32
	AgentAddress     net.IP
	SubAgentID       uint32
	SequenceNumber   uint32
	UptimeMs         uint32
	NumSamples       uint32
	Samples          []Sample
}

// InterfaceRef is an sFlow interface descriptor: a format discriminator
// plus the interface index or synthetic value it qualifies.
type InterfaceRef struct {
	Format uint32
	Value  uint32
}

// Sample is one flow or counter sample within a datagram.
type Sample struct {
	SampleType     uint32
	SampleLength   uint32
	SequenceNumber uint32
	SourceIDType   uint32
	SourceIDIndex  uint32
	SamplingRate   uint32
	SamplePool     uint32
	Drops          uint32
	Input          InterfaceRef
	Output         InterfaceRef
	NumRecords     uint32
	Records        []Record

	// Unrecognized is true when SampleType was outside {1,2,3,4}. The
	// sample is still delivered with empty Records; Decode itself never
	// logs (it has no side effects), so the decode worker checks this
	// flag to log on the caller's behalf.
	Unrecognized bool
}

// RecordBody is the payload of a typed flow record. Go has no sum types,
// so record dispatch uses this marker interface plus a type switch at the
// call site — the idiomatic substitute for the tagged union spec.md
// describes.
type RecordBody interface {
	isRecordBody()
}

// Record is one flow record within a sample: a numeric tag, its declared
// wire length, and its decoded body.
type Record struct {
	Tag    uint32
	Length uint32
	Body   RecordBody
}

// RawPacketHeader embeds bytes of the sampled frame itself. Header is a
// view into the owning datagram's buffer, bounded to HeaderSize bytes;
// the L2/L3 decoder (header.go) is applied lazily by the aggregator.
type RawPacketHeader struct {
	Protocol    uint32
	FrameLength uint32
	Stripped    uint32
	HeaderSize  uint32
	Header      []byte
}

func (RawPacketHeader) isRecordBody() {}

// EthernetFrame is a pre-parsed Ethernet frame record.
type EthernetFrame struct {
	FrameLength uint32
	SrcMAC      [6]byte
	DstMAC      [6]byte
	EtherType   uint16
}

func (EthernetFrame) isRecordBody() {}

// IPv4Flow is a pre-parsed IPv4 flow record.
type IPv4Flow struct {
	Length   uint32
	Protocol uint32
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint32
	DstPort  uint32
	TCPFlags uint32
	ToS      uint32
}

func (IPv4Flow) isRecordBody() {}

// IPv6Flow is a pre-parsed IPv6 flow record.
type IPv6Flow struct {
	Length   uint32
	Protocol uint32
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint32
	DstPort  uint32
	TCPFlags uint32
	Priority uint32
}

func (IPv6Flow) isRecordBody() {}

// ExtendedSwitch carries ingress/egress VLAN and 802.1p priority.
type ExtendedSwitch struct {
	SrcVLAN     uint32
	SrcPriority uint32
	DstVLAN     uint32
	DstPriority uint32
}

func (ExtendedSwitch) isRecordBody() {}

// ExtendedRouter carries the next-hop and mask lengths for a routed flow.
type ExtendedRouter struct {
	NextHop net.IP
	SrcMask uint32
	DstMask uint32
}

func (ExtendedRouter) isRecordBody() {}

// UnknownRecord preserves the tag and raw bytes of a record type this
// decoder does not recognize, so the aggregator can skip it without
// losing track of what was seen.
type UnknownRecord struct {
	Tag  uint32
	Data []byte
}

func (UnknownRecord) isRecordBody() {}
