package sflow

import (
	"fmt"
	"net"
)

// Decode parses a single sFlow v5 datagram. It is a pure function: the
// same bytes always produce the same result, and it never logs or
// touches global state. Any malformed input aborts the whole datagram
// with one of the sentinel errors in reader.go; Decode never panics.
func Decode(data []byte) (*Datagram, error) {
	r := NewReader(data)

	version, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if version != 5 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	addrType, err := r.Uint32()
	if err != nil {
		return nil, err
	}

	var agentAddr net.IP
	switch addrType {
	case 1:
		b, err := r.ReadExact(4)
		if err != nil {
			return nil, err
		}
		agentAddr = append(net.IP(nil), b...)
	case 2:
		b, err := r.ReadExact(16)
		if err != nil {
			return nil, err
		}
		agentAddr = append(net.IP(nil), b...)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAddressType, addrType)
	}

	subAgentID, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	seq, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	uptime, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	numSamples, err := r.Uint32()
	if err != nil {
		return nil, err
	}

	dg := &Datagram{
		Version:          version,
		AgentAddressType: addrType,
		AgentAddress:     agentAddr,
		SubAgentID:       subAgentID,
		SequenceNumber:   seq,
		UptimeMs:         uptime,
		NumSamples:       numSamples,
		Samples:          make([]Sample, 0, boundedCount(numSamples, r.Remaining())),
	}

	for i := uint32(0); i < numSamples; i++ {
		sample, err := decodeSample(r)
		if err != nil {
			return nil, err
		}
		dg.Samples = append(dg.Samples, sample)
	}

	return dg, nil
}

func decodeSample(r *Reader) (Sample, error) {
	sampleType, err := r.Uint32()
	if err != nil {
		return Sample{}, err
	}
	sampleLength, err := r.Uint32()
	if err != nil {
		return Sample{}, err
	}
	if int(sampleLength) > r.Remaining() {
		return Sample{}, fmt.Errorf("%w: sample length %d exceeds remaining %d", ErrTruncated, sampleLength, r.Remaining())
	}
	body, err := r.ReadExact(int(sampleLength))
	if err != nil {
		return Sample{}, err
	}
	sr := NewReader(body)

	seq, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	sourceIDType, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	sourceIDIndex, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	samplingRate, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	samplePool, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	drops, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	inFormat, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	inValue, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	outFormat, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	outValue, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}
	numRecords, err := sr.Uint32()
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		SampleType:     sampleType,
		SampleLength:   sampleLength,
		SequenceNumber: seq,
		SourceIDType:   sourceIDType,
		SourceIDIndex:  sourceIDIndex,
		SamplingRate:   samplingRate,
		SamplePool:     samplePool,
		Drops:          drops,
		Input:          InterfaceRef{Format: inFormat, Value: inValue},
		Output:         InterfaceRef{Format: outFormat, Value: outValue},
		NumRecords:     numRecords,
	}

	switch sampleType {
	case SampleTypeFlow, SampleTypeFlowExpanded:
		records := make([]Record, 0, boundedCount(numRecords, sr.Remaining()))
		for i := uint32(0); i < numRecords; i++ {
			if sr.Remaining() < 8 {
				return Sample{}, fmt.Errorf("%w: sample body exhausted after %d of %d records", ErrTruncated, i, numRecords)
			}
			rec, err := decodeRecord(sr)
			if err != nil {
				return Sample{}, err
			}
			records = append(records, rec)
		}
		if sr.Remaining() != 0 {
			return Sample{}, fmt.Errorf("%w: sample body has %d unconsumed bytes after %d records", ErrLengthMismatch, sr.Remaining(), numRecords)
		}
		s.Records = records
	case SampleTypeCounter, SampleTypeCounterExpanded:
		// Counter samples carry no flow records for this collector;
		// sample_length bytes are already consumed above.
	default:
		s.Unrecognized = true
	}

	return s, nil
}

func decodeRecord(r *Reader) (Record, error) {
	tag, err := r.Uint32()
	if err != nil {
		return Record{}, err
	}
	length, err := r.Uint32()
	if err != nil {
		return Record{}, err
	}
	if int(length) > r.Remaining() {
		return Record{}, fmt.Errorf("%w: record length %d exceeds remaining %d", ErrTruncated, length, r.Remaining())
	}
	payload, err := r.ReadExact(int(length))
	if err != nil {
		return Record{}, err
	}
	pr := NewReader(payload)

	var body RecordBody
	switch tag {
	case RecordTagRawPacketHeader:
		body, err = decodeRawPacketHeader(pr)
	case RecordTagEthernetFrame:
		body, err = decodeEthernetFrame(pr)
	case RecordTagIPv4Flow:
		body, err = decodeIPv4Flow(pr)
	case RecordTagIPv6Flow:
		body, err = decodeIPv6Flow(pr)
	case RecordTagExtendedSwitch:
		body, err = decodeExtendedSwitch(pr)
	case RecordTagExtendedRouter:
		body, err = decodeExtendedRouter(pr)
	default:
		body = UnknownRecord{Tag: tag, Data: payload}
	}
	if err != nil {
		return Record{}, err
	}

	return Record{Tag: tag, Length: length, Body: body}, nil
}

func decodeRawPacketHeader(r *Reader) (RecordBody, error) {
	protocol, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	frameLength, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	stripped, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	headerSize, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if int(headerSize) > r.Remaining() {
		return nil, fmt.Errorf("%w: header size %d exceeds remaining %d", ErrTruncated, headerSize, r.Remaining())
	}
	header, err := r.ReadExact(int(headerSize))
	if err != nil {
		return nil, err
	}
	return RawPacketHeader{
		Protocol:    protocol,
		FrameLength: frameLength,
		Stripped:    stripped,
		HeaderSize:  headerSize,
		Header:      header,
	}, nil
}

func decodeEthernetFrame(r *Reader) (RecordBody, error) {
	frameLength, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	var f EthernetFrame
	f.FrameLength = frameLength
	if err := r.ReadInto(f.SrcMAC[:]); err != nil {
		return nil, err
	}
	if err := r.Skip(2); err != nil {
		return nil, err
	}
	if err := r.ReadInto(f.DstMAC[:]); err != nil {
		return nil, err
	}
	if err := r.Skip(2); err != nil {
		return nil, err
	}
	etherType, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	f.EtherType = uint16(etherType)
	return f, nil
}

func decodeIPv4Flow(r *Reader) (RecordBody, error) {
	var f IPv4Flow
	var err error
	if f.Length, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.Protocol, err = r.Uint32(); err != nil {
		return nil, err
	}
	srcRaw, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	dstRaw, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	f.SrcIP = ipv4FromUint32(srcRaw)
	f.DstIP = ipv4FromUint32(dstRaw)
	if f.SrcPort, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.DstPort, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.TCPFlags, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.ToS, err = r.Uint32(); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeIPv6Flow(r *Reader) (RecordBody, error) {
	var f IPv6Flow
	var err error
	if f.Length, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.Protocol, err = r.Uint32(); err != nil {
		return nil, err
	}
	// Two independent 16-byte reads: the Rust original this was ported
	// from reused one buffer for both addresses, yielding src == dst.
	// spec.md flags that as a bug; read src and dst separately here.
	src := make(net.IP, 16)
	if err := r.ReadInto(src); err != nil {
		return nil, err
	}
	dst := make(net.IP, 16)
	if err := r.ReadInto(dst); err != nil {
		return nil, err
	}
	f.SrcIP = src
	f.DstIP = dst
	if f.SrcPort, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.DstPort, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.TCPFlags, err = r.Uint32(); err != nil {
		return nil, err
	}
	if f.Priority, err = r.Uint32(); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeExtendedSwitch(r *Reader) (RecordBody, error) {
	var s ExtendedSwitch
	var err error
	if s.SrcVLAN, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.SrcPriority, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.DstVLAN, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.DstPriority, err = r.Uint32(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeExtendedRouter(r *Reader) (RecordBody, error) {
	nextHop := make(net.IP, 16)
	if err := r.ReadInto(nextHop); err != nil {
		return nil, err
	}
	srcMask, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	dstMask, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return ExtendedRouter{NextHop: nextHop, SrcMask: srcMask, DstMask: dstMask}, nil
}

// boundedCount caps a declared element count by how many 8-byte
// (type + length) headers the remaining bytes could hold, so a hostile
// count cannot force a huge preallocation.
func boundedCount(declared uint32, remaining int) int {
	if limit := remaining / 8; int64(declared) > int64(limit) {
		return limit
	}
	return int(declared)
}

func ipv4FromUint32(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
