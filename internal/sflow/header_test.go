package sflow

import (
	"net"
	"testing"
)

func buildEthernetIPv4(vlan bool) []byte {
	dst := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	src := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	buf := append([]byte{}, dst...)
	buf = append(buf, src...)
	if vlan {
		buf = append(buf, 0x81, 0x00, 0x00, 0x64) // 802.1Q, VLAN 100
	}
	buf = append(buf, 0x08, 0x00) // IPv4
	// minimal IPv4 header: version/IHL, ToS, total length, id, flags/frag,
	// ttl, protocol, checksum, src, dst
	ipHeader := []byte{
		0x45, 0x00, 0x00, 0x28,
		0x00, 0x00, 0x40, 0x00,
		0x40, 0x06, 0x00, 0x00,
		10, 0, 0, 1,
		10, 0, 0, 2,
	}
	buf = append(buf, ipHeader...)
	return buf
}

func TestDecodeHeaderEthernetIPv4(t *testing.T) {
	raw := buildEthernetIPv4(false)
	info := DecodeHeader(raw)

	if info.EtherType != etherTypeIPv4 {
		t.Fatalf("expected ethertype IPv4, got 0x%04x", info.EtherType)
	}
	if info.HasVLAN {
		t.Fatalf("expected no VLAN tag")
	}
	want := net.IPv4(10, 0, 0, 1).To4()
	if !info.SrcAddr.Equal(want) {
		t.Fatalf("expected src 10.0.0.1, got %s", info.SrcAddr)
	}
	want = net.IPv4(10, 0, 0, 2).To4()
	if !info.DstAddr.Equal(want) {
		t.Fatalf("expected dst 10.0.0.2, got %s", info.DstAddr)
	}
}

func TestDecodeHeaderVLANTagged(t *testing.T) {
	raw := buildEthernetIPv4(true)
	info := DecodeHeader(raw)

	if !info.HasVLAN {
		t.Fatalf("expected VLAN tag present")
	}
	if info.VLAN != 100 {
		t.Fatalf("expected VLAN 100, got %d", info.VLAN)
	}
	if info.EtherType != etherTypeIPv4 {
		t.Fatalf("expected inner ethertype IPv4, got 0x%04x", info.EtherType)
	}
}

func TestDecodeHeaderTruncatedAtMACBoundary(t *testing.T) {
	raw := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00, 0x11}
	info := DecodeHeader(raw)

	if info.DstMAC != [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff} {
		t.Fatalf("expected dst MAC to be filled in from the first 6 bytes")
	}
	if info.SrcMAC != ([6]byte{}) {
		t.Fatalf("expected src MAC to stay zero when input is short")
	}
	if info.EtherType != 0 {
		t.Fatalf("expected zero ethertype on truncated input")
	}
}

func TestDecodeHeaderTruncatedBeforeEthertype(t *testing.T) {
	raw := make([]byte, 13)
	info := DecodeHeader(raw)
	if info.EtherType != 0 {
		t.Fatalf("expected zero ethertype, got 0x%04x", info.EtherType)
	}
	if info.SrcAddr != nil || info.DstAddr != nil {
		t.Fatalf("expected nil addresses on truncated input")
	}
}

func TestDecodeHeaderNeverPanicsOnEmptyInput(t *testing.T) {
	info := DecodeHeader(nil)
	if info.EtherType != 0 || info.HasVLAN {
		t.Fatalf("expected zero-value HeaderInfo for empty input, got %+v", info)
	}
}

func TestDecodeHeaderIPv6(t *testing.T) {
	dst := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	src := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	buf := append([]byte{}, dst...)
	buf = append(buf, src...)
	buf = append(buf, 0x86, 0xdd) // IPv6
	ipv6Header := make([]byte, 40)
	ipv6Header[0] = 0x60
	srcAddr := net.ParseIP("fe80::1").To16()
	dstAddr := net.ParseIP("fe80::2").To16()
	copy(ipv6Header[8:24], srcAddr)
	copy(ipv6Header[24:40], dstAddr)
	buf = append(buf, ipv6Header...)

	info := DecodeHeader(buf)
	if info.EtherType != etherTypeIPv6 {
		t.Fatalf("expected ethertype IPv6, got 0x%04x", info.EtherType)
	}
	if !info.SrcAddr.Equal(srcAddr) {
		t.Fatalf("expected src fe80::1, got %s", info.SrcAddr)
	}
	if !info.DstAddr.Equal(dstAddr) {
		t.Fatalf("expected dst fe80::2, got %s", info.DstAddr)
	}
}
