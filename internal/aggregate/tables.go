package aggregate

import (
	"sync"

	"go.uber.org/zap"

	"github.com/metalgrid/sflowcollectd/internal/sflow"
)

// Tables holds the three independently-locked counter tables the HTTP
// surface reports. Each table has its own RWMutex: a reader of
// /metrics/flow never blocks behind a writer updating the per-source
// table, and vice versa. There is no lock ordering between tables because
// no operation ever needs to hold two at once.
type Tables struct {
	log *zap.Logger

	sourceMu sync.RWMutex
	source   map[string]Counter

	agentMu sync.RWMutex
	agent   map[string]map[string]Counter

	flowMu sync.RWMutex
	flow   map[FlowKey]Counter
}

// NewTables returns empty tables ready for concurrent use.
func NewTables(log *zap.Logger) *Tables {
	return &Tables{
		log:    log,
		source: make(map[string]Counter),
		agent:  make(map[string]map[string]Counter),
		flow:   make(map[FlowKey]Counter),
	}
}

// recoverSource, recoverAgent and recoverFlow run fn under their table's
// mutex, and if fn panics, recover, log, and reinitialize that table to
// empty rather than letting the panic propagate and leave the mutex held
// by a dead goroutine. Go has no runtime-detected "poisoned mutex" the way
// some languages do; this is the idiomatic substitute: the panic is caught
// at the same call site that took the lock. The recover runs first, so the
// table is reinitialized while the lock is still held, and the deferred
// Unlock then always releases the mutex.
func (t *Tables) recoverSource(fn func()) {
	t.sourceMu.Lock()
	defer t.sourceMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("recovered panic in source table, reinitializing", zap.Any("panic", r))
			t.source = make(map[string]Counter)
		}
	}()
	fn()
}

func (t *Tables) recoverAgent(fn func()) {
	t.agentMu.Lock()
	defer t.agentMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("recovered panic in agent table, reinitializing", zap.Any("panic", r))
			t.agent = make(map[string]map[string]Counter)
		}
	}()
	fn()
}

func (t *Tables) recoverFlow(fn func()) {
	t.flowMu.Lock()
	defer t.flowMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("recovered panic in flow table, reinitializing", zap.Any("panic", r))
			t.flow = make(map[FlowKey]Counter)
		}
	}()
	fn()
}

// RecordSource increments the per-source-IP table for one received
// datagram: packets by 1, bytes by the UDP payload length.
func (t *Tables) RecordSource(sourceIP string, payloadLen int) {
	t.recoverSource(func() {
		c := t.source[sourceIP]
		c.Add(1, uint64(payloadLen))
		t.source[sourceIP] = c
	})
}

// RecordAgentSample increments the per-(agent, sample-kind) table for one
// sample: packets by 1, bytes by the sample's wire length. kind is the
// stringified sample_type, matching the JSON key shape spec.md requires.
func (t *Tables) RecordAgentSample(agentAddr, kind string, sampleLength uint32) {
	t.recoverAgent(func() {
		byKind, ok := t.agent[agentAddr]
		if !ok {
			byKind = make(map[string]Counter)
			t.agent[agentAddr] = byKind
		}
		c := byKind[kind]
		c.Add(1, uint64(sampleLength))
		byKind[kind] = c
	})
}

// CollectFlow folds one flow/expanded-flow sample into the flow table. It
// walks sample.Records in order, building a FlowKey and a byte count the
// same way spec.md's aggregator algorithm does: later records win over
// earlier ones for any field they touch, and IPv4Flow/IPv6Flow records
// only ever update the byte count, never FlowKey.Protocol.
func (t *Tables) CollectFlow(sample sflow.Sample) {
	var key FlowKey
	pkts := uint64(sample.SamplingRate)
	var bytes uint64

	for _, rec := range sample.Records {
		switch r := rec.Body.(type) {
		case sflow.RawPacketHeader:
			info := sflow.DecodeHeader(r.Header)
			key.SrcMAC = info.SrcMAC
			key.DstMAC = info.DstMAC
			key.Protocol = uint32(info.EtherType)
			if info.HasVLAN {
				key.VLAN = uint32(info.VLAN)
			}
			bytes = uint64(r.FrameLength) * uint64(sample.SamplingRate)
		case sflow.EthernetFrame:
			key.SrcMAC = r.SrcMAC
			key.DstMAC = r.DstMAC
			key.Protocol = uint32(r.EtherType)
		case sflow.ExtendedSwitch:
			key.VLAN = r.SrcVLAN
		case sflow.IPv4Flow:
			bytes = uint64(r.Length) * uint64(sample.SamplingRate)
		case sflow.IPv6Flow:
			bytes = uint64(r.Length) * uint64(sample.SamplingRate)
		}
	}

	t.recoverFlow(func() {
		c := t.flow[key]
		c.Add(pkts, bytes)
		t.flow[key] = c
	})
}

// SourceSnapshot returns a copy of the per-source-IP table, safe for the
// caller to encode without holding any lock.
func (t *Tables) SourceSnapshot() map[string]Counter {
	t.sourceMu.RLock()
	defer t.sourceMu.RUnlock()
	out := make(map[string]Counter, len(t.source))
	for k, v := range t.source {
		out[k] = v
	}
	return out
}

// AgentSnapshot returns a deep copy of the per-(agent, sample-kind) table.
func (t *Tables) AgentSnapshot() map[string]map[string]Counter {
	t.agentMu.RLock()
	defer t.agentMu.RUnlock()
	out := make(map[string]map[string]Counter, len(t.agent))
	for agent, byKind := range t.agent {
		inner := make(map[string]Counter, len(byKind))
		for kind, c := range byKind {
			inner[kind] = c
		}
		out[agent] = inner
	}
	return out
}

// FlowEntry pairs a FlowKey with its Counter for snapshot iteration; the
// HTTP handler flattens these into the JSON array shape spec.md requires.
type FlowEntry struct {
	Key     FlowKey
	Counter Counter
}

// FlowSnapshot returns a copy of the flow table as a slice, since FlowKey
// is not itself JSON-friendly (the handler renders MACs as strings).
func (t *Tables) FlowSnapshot() []FlowEntry {
	t.flowMu.RLock()
	defer t.flowMu.RUnlock()
	out := make([]FlowEntry, 0, len(t.flow))
	for k, v := range t.flow {
		out = append(out, FlowEntry{Key: k, Counter: v})
	}
	return out
}
