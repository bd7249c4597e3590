package source

import (
	"fmt"
	"net"
)

// UDPReceiver reads sFlow datagrams off a plain UDP socket.
type UDPReceiver struct {
	conn *net.UDPConn
}

// NewUDPReceiver binds addr (host:port, e.g. "0.0.0.0:6343") and returns a
// Receiver reading from it.
func NewUDPReceiver(addr string) (*UDPReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("source: resolve udp addr %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("source: listen udp %q: %w", addr, err)
	}
	return &UDPReceiver{conn: conn}, nil
}

// Receive blocks on ReadFromUDP and reports the sender's IP with no port.
func (u *UDPReceiver) Receive(buf []byte) (int, string, error) {
	n, raddr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, "", fmt.Errorf("source: udp read: %w", err)
	}
	return n, raddr.IP.String(), nil
}

// Close unblocks any pending Receive and releases the socket.
func (u *UDPReceiver) Close() error {
	return u.conn.Close()
}
