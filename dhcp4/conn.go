// Copyright 2016 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dhcp4

import (
	"fmt"
	"net"
	"time"

	netipv4 "golang.org/x/net/ipv4"
)

// MaxDatagramSize is the largest datagram Conn reads. Anything bigger
// is truncated by the kernel.
const MaxDatagramSize = 1500

// Conn is a UDP socket that moves raw DHCP datagrams. It does not
// decode anything; replies always go back to an explicit address,
// which for a relay-facing server is the relay that sent the request.
//
// Multiple goroutines may invoke methods on a Conn simultaneously.
type Conn struct {
	conn *netipv4.PacketConn
}

// NewConn creates a Conn bound to the given UDP ip:port.
func NewConn(addr string) (*Conn, error) {
	if addr == "" {
		addr = ":67"
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	if udpAddr.IP != nil && udpAddr.IP.To4() == nil {
		return nil, fmt.Errorf("%s is not an IPv4 address", addr)
	}

	c, err := net.ListenPacket("udp4", udpAddr.String())
	if err != nil {
		return nil, err
	}
	return &Conn{netipv4.NewPacketConn(c)}, nil
}

// Close closes the DHCP socket.
// Any blocked Read or Write operations will be unblocked and return errors.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the address the socket is bound to.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Recv reads one datagram into b and returns the filled part of b and
// the address it came from.
func (c *Conn) Recv(b []byte) ([]byte, *net.UDPAddr, error) {
	n, _, addr, err := c.conn.ReadFrom(b)
	if err != nil {
		return nil, nil, err
	}
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected source address type %T", addr)
	}
	return b[:n], udpAddr, nil
}

// Send writes b as a single datagram to addr.
func (c *Conn) Send(b []byte, addr *net.UDPAddr) error {
	_, err := c.conn.WriteTo(b, nil, addr)
	return err
}

// SetReadDeadline sets the deadline for future Recv calls.  If the
// deadline is reached, Recv will fail with a timeout (see net.Error)
// instead of blocking.  A zero value for t means Recv will not time
// out.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the deadline for future Send calls.  If the
// deadline is reached, Send will fail with a timeout (see net.Error)
// instead of blocking.  A zero value for t means Send will not time
// out.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
