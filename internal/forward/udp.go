package forward

import (
	"fmt"
	"net"
)

// UDPTransport sends datagrams from one bound local address to a fixed
// receiver.
type UDPTransport struct {
	conn     *net.UDPConn
	receiver *net.UDPAddr
}

// ListenUDP binds sender and resolves receiver. Both are host:port strings.
func ListenUDP(sender, receiver string) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", sender)
	if err != nil {
		return nil, fmt.Errorf("forward: resolve sender %q: %w", sender, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", receiver)
	if err != nil {
		return nil, fmt.Errorf("forward: resolve receiver %q: %w", receiver, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("forward: bind %s: %w", sender, err)
	}
	return &UDPTransport{conn: conn, receiver: raddr}, nil
}

// LocalAddr returns the bound sender address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Send(data []byte) error {
	_, err := t.conn.WriteToUDP(data, t.receiver)
	return err
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
