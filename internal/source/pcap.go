package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// errNonUDPPacket is returned internally (never to the caller) to signal
// that a captured frame wasn't an IPv4/UDP datagram and should be
// skipped; Receive loops past it rather than surfacing it.
var errNonUDPPacket = errors.New("source: captured frame is not ipv4/udp")

// PCAPReceiver reads sFlow datagrams off a live libpcap capture, peeling
// the link-layer and IPv4/UDP headers by hand rather than through
// gopacket's decoding-layer machinery — this collector owns wire parsing
// itself, the same way it owns the sFlow format.
type PCAPReceiver struct {
	handle   *pcap.Handle
	linkType layers.LinkType
}

// PCAPConfig configures a live capture.
type PCAPConfig struct {
	Interface string
	Filter    string
	SnapLen   int32
	Promisc   bool
	Immediate bool
	Timeout   time.Duration
}

// NewPCAPReceiver opens iface for live capture and applies filter as a BPF
// expression, following the inactive-handle activation sequence the pack
// uses for live captures: configure before Activate, filter after.
func NewPCAPReceiver(cfg PCAPConfig) (*PCAPReceiver, error) {
	inactive, err := pcap.NewInactiveHandle(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("source: new inactive handle for %q: %w", cfg.Interface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(int(cfg.SnapLen)); err != nil {
		return nil, fmt.Errorf("source: set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(cfg.Promisc); err != nil {
		return nil, fmt.Errorf("source: set promisc: %w", err)
	}
	if err := inactive.SetImmediateMode(cfg.Immediate); err != nil {
		return nil, fmt.Errorf("source: set immediate mode: %w", err)
	}
	if err := inactive.SetTimeout(cfg.Timeout); err != nil {
		return nil, fmt.Errorf("source: set timeout: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("source: activate capture on %q: %w", cfg.Interface, err)
	}

	if cfg.Filter != "" {
		if err := handle.SetBPFFilter(cfg.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("source: set bpf filter %q: %w", cfg.Filter, err)
		}
	}

	return &PCAPReceiver{handle: handle, linkType: handle.LinkType()}, nil
}

// Receive reads packets until it finds one carrying a UDP payload,
// decoding the link layer and IPv4+UDP headers itself and copying the
// UDP payload into buf.
func (p *PCAPReceiver) Receive(buf []byte) (int, string, error) {
	for {
		data, _, err := p.handle.ReadPacketData()
		if err != nil {
			return 0, "", fmt.Errorf("source: pcap read: %w", err)
		}

		n, srcAddr, err := p.extractUDPPayload(data, buf)
		if errors.Is(err, errNonUDPPacket) {
			continue
		}
		if err != nil {
			continue
		}
		return n, srcAddr, nil
	}
}

// Close stops the capture.
func (p *PCAPReceiver) Close() error {
	p.handle.Close()
	return nil
}

// extractUDPPayload peels the link layer (plain Ethernet, Linux SLL, or
// Linux SLL2, with optional one-level 802.1Q), then a plain IPv4 + UDP
// header, copying the UDP payload into dst.
func (p *PCAPReceiver) extractUDPPayload(data []byte, dst []byte) (int, string, error) {
	payload, srcIP, err := p.peelLinkLayer(data)
	if err != nil {
		return 0, "", err
	}
	return peelIPv4UDP(payload, srcIP, dst)
}

func (p *PCAPReceiver) peelLinkLayer(data []byte) (rest []byte, fallbackSrc net.IP, err error) {
	switch p.linkType {
	case layers.LinkTypeEthernet:
		return peelEthernet(data)
	case layers.LinkTypeLinuxSLL:
		return peelLinuxSLL(data)
	case layers.LinkTypeLinuxSLL2:
		return peelLinuxSLL2(data)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported link type %s", errNonUDPPacket, p.linkType)
	}
}

func peelEthernet(data []byte) ([]byte, net.IP, error) {
	if len(data) < 14 {
		return nil, nil, errNonUDPPacket
	}
	ethertype := binary.BigEndian.Uint16(data[12:14])
	offset := 14
	if ethertype == 0x8100 {
		if len(data) < offset+4 {
			return nil, nil, errNonUDPPacket
		}
		ethertype = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
	}
	if ethertype != 0x0800 {
		return nil, nil, errNonUDPPacket
	}
	return data[offset:], nil, nil
}

// peelLinuxSLL peels the 16-byte Linux "cooked capture v1" header used
// when capturing on "any".
func peelLinuxSLL(data []byte) ([]byte, net.IP, error) {
	const sllHeaderLen = 16
	if len(data) < sllHeaderLen {
		return nil, nil, errNonUDPPacket
	}
	protocol := binary.BigEndian.Uint16(data[14:16])
	if protocol != 0x0800 {
		return nil, nil, errNonUDPPacket
	}
	return data[sllHeaderLen:], nil, nil
}

// peelLinuxSLL2 peels the 20-byte Linux "cooked capture v2" header.
func peelLinuxSLL2(data []byte) ([]byte, net.IP, error) {
	const sll2HeaderLen = 20
	if len(data) < sll2HeaderLen {
		return nil, nil, errNonUDPPacket
	}
	protocol := binary.BigEndian.Uint16(data[0:2])
	if protocol != 0x0800 {
		return nil, nil, errNonUDPPacket
	}
	return data[sll2HeaderLen:], nil, nil
}

// peelIPv4UDP parses a minimal IPv4 header (handling options via IHL) and
// a UDP header, copying the UDP payload into dst. The IPv4 source address
// is always used for srcAddr, regardless of fallbackSrc.
func peelIPv4UDP(data []byte, fallbackSrc net.IP, dst []byte) (int, string, error) {
	if len(data) < 20 {
		return 0, "", errNonUDPPacket
	}
	if data[0]>>4 != 4 {
		return 0, "", errNonUDPPacket
	}
	ihl := int(data[0]&0x0F) * 4
	if ihl < 20 || len(data) < ihl {
		return 0, "", errNonUDPPacket
	}
	if data[9] != 17 { // protocol: UDP
		return 0, "", errNonUDPPacket
	}
	srcIP := net.IPv4(data[12], data[13], data[14], data[15])

	udp := data[ihl:]
	if len(udp) < 8 {
		return 0, "", errNonUDPPacket
	}
	payload := udp[8:]
	n := copy(dst, payload)
	return n, srcIP.String(), nil
}
