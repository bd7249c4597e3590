package aggregate

import (
	"testing"

	"go.uber.org/zap"

	"github.com/metalgrid/sflowcollectd/internal/sflow"
)

func testTables(t *testing.T) *Tables {
	t.Helper()
	return NewTables(zap.NewNop())
}

func ethernetAndIPv4Sample(samplingRate uint32) sflow.Sample {
	src := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dst := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	return sflow.Sample{
		SampleType:   sflow.SampleTypeFlowExpanded,
		SamplingRate: samplingRate,
		Records: []sflow.Record{
			{Tag: sflow.RecordTagEthernetFrame, Body: sflow.EthernetFrame{
				FrameLength: 1500,
				SrcMAC:      src,
				DstMAC:      dst,
				EtherType:   0x0800,
			}},
			{Tag: sflow.RecordTagIPv4Flow, Body: sflow.IPv4Flow{
				Length:   1500,
				Protocol: 6,
			}},
		},
	}
}

// Scenario 2: IPv4 agent, one expanded flow sample, Ethernet + IPv4,
// sampling_rate=16, length=1500 -> {packets: 16, bytes: 24000}.
func TestCollectFlowEthernetAndIPv4(t *testing.T) {
	tbl := testTables(t)
	tbl.CollectFlow(ethernetAndIPv4Sample(16))

	entries := tbl.FlowSnapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 flow entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Counter.Packets != 16 || e.Counter.Bytes != 24000 {
		t.Fatalf("expected {16, 24000}, got %+v", e.Counter)
	}
	if e.Key.VLAN != 0 {
		t.Fatalf("expected VLAN 0, got %d", e.Key.VLAN)
	}
	if e.Key.Protocol != 0x0800 {
		t.Fatalf("expected protocol to be the ethertype 0x0800, got 0x%x", e.Key.Protocol)
	}
}

// Scenario 3: same as 2, plus an ExtendedSwitch with src_vlan=100 -> the
// sole entry has vlan=100, packets unchanged.
func TestCollectFlowExtendedSwitchSetsVLAN(t *testing.T) {
	tbl := testTables(t)
	sample := ethernetAndIPv4Sample(16)
	sample.Records = append(sample.Records, sflow.Record{
		Tag: sflow.RecordTagExtendedSwitch,
		Body: sflow.ExtendedSwitch{
			SrcVLAN: 100,
		},
	})
	tbl.CollectFlow(sample)

	entries := tbl.FlowSnapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 flow entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Key.VLAN != 100 {
		t.Fatalf("expected VLAN 100, got %d", e.Key.VLAN)
	}
	if e.Counter.Packets != 16 {
		t.Fatalf("expected packets unchanged at 16, got %d", e.Counter.Packets)
	}
}

// Scenario 4: two datagrams in succession with identical key and
// sampling_rate=8, length=100 -> one entry with {packets: 16, bytes: 1600}.
func TestCollectFlowAccumulatesAcrossSamples(t *testing.T) {
	tbl := testTables(t)
	src := [6]byte{1, 2, 3, 4, 5, 6}
	dst := [6]byte{6, 5, 4, 3, 2, 1}
	sample := sflow.Sample{
		SampleType:   sflow.SampleTypeFlow,
		SamplingRate: 8,
		Records: []sflow.Record{
			{Tag: sflow.RecordTagEthernetFrame, Body: sflow.EthernetFrame{
				FrameLength: 100,
				SrcMAC:      src,
				DstMAC:      dst,
				EtherType:   0x0800,
			}},
			{Tag: sflow.RecordTagIPv4Flow, Body: sflow.IPv4Flow{Length: 100}},
		},
	}

	tbl.CollectFlow(sample)
	tbl.CollectFlow(sample)

	entries := tbl.FlowSnapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 flow entry, got %d", len(entries))
	}
	if entries[0].Counter.Packets != 16 || entries[0].Counter.Bytes != 1600 {
		t.Fatalf("expected {16, 1600}, got %+v", entries[0].Counter)
	}
}

// Scenario 5: counter sample (type 2) leaves the flow table untouched;
// the per-agent-kind table gains an entry keyed by the stringified type.
func TestCounterSampleUpdatesAgentTableNotFlowTable(t *testing.T) {
	tbl := testTables(t)
	tbl.RecordAgentSample("172.16.1.19", "2", 48)

	if len(tbl.FlowSnapshot()) != 0 {
		t.Fatalf("expected flow table untouched by a counter sample")
	}
	agentSnap := tbl.AgentSnapshot()
	c, ok := agentSnap["172.16.1.19"]["2"]
	if !ok {
		t.Fatalf("expected an entry at (172.16.1.19, \"2\")")
	}
	if c.Packets != 1 || c.Bytes != 48 {
		t.Fatalf("expected {1, 48}, got %+v", c)
	}
}

func TestRecordSourceIncrementsBySourceIP(t *testing.T) {
	tbl := testTables(t)
	tbl.RecordSource("10.0.0.5", 200)
	tbl.RecordSource("10.0.0.5", 300)
	tbl.RecordSource("10.0.0.9", 50)

	snap := tbl.SourceSnapshot()
	if snap["10.0.0.5"].Packets != 2 || snap["10.0.0.5"].Bytes != 500 {
		t.Fatalf("expected {2, 500} for 10.0.0.5, got %+v", snap["10.0.0.5"])
	}
	if snap["10.0.0.9"].Packets != 1 || snap["10.0.0.9"].Bytes != 50 {
		t.Fatalf("expected {1, 50} for 10.0.0.9, got %+v", snap["10.0.0.9"])
	}
}

// RawPacketHeader records set FlowKey from the embedded L2 header, and a
// later EthernetFrame record in the same sample overwrites what the
// RawPacketHeader set — walk order is the tie-break, per spec.
func TestCollectFlowLaterRecordWinsOnOverlap(t *testing.T) {
	tbl := testTables(t)
	rawSrc := [6]byte{9, 9, 9, 9, 9, 9}
	rawDst := [6]byte{8, 8, 8, 8, 8, 8}
	header := append(append([]byte{}, rawDst[:]...), rawSrc[:]...)
	header = append(header, 0x08, 0x00)

	ethSrc := [6]byte{1, 1, 1, 1, 1, 1}
	ethDst := [6]byte{2, 2, 2, 2, 2, 2}

	sample := sflow.Sample{
		SampleType:   sflow.SampleTypeFlow,
		SamplingRate: 1,
		Records: []sflow.Record{
			{Tag: sflow.RecordTagRawPacketHeader, Body: sflow.RawPacketHeader{
				FrameLength: 64,
				HeaderSize:  uint32(len(header)),
				Header:      header,
			}},
			{Tag: sflow.RecordTagEthernetFrame, Body: sflow.EthernetFrame{
				FrameLength: 64,
				SrcMAC:      ethSrc,
				DstMAC:      ethDst,
				EtherType:   0x86DD,
			}},
		},
	}
	tbl.CollectFlow(sample)

	entries := tbl.FlowSnapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 flow entry, got %d", len(entries))
	}
	if entries[0].Key.SrcMAC != ethSrc || entries[0].Key.DstMAC != ethDst {
		t.Fatalf("expected the EthernetFrame record to win, got %+v", entries[0].Key)
	}
	if entries[0].Key.Protocol != 0x86DD {
		t.Fatalf("expected protocol 0x86dd from the later record, got 0x%x", entries[0].Key.Protocol)
	}
}
