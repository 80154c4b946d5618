package dhcpd

import (
	"fmt"
	"net"
)

// GuessServerIP returns the local address the host would use to reach
// the internet. No packet is sent.
func GuessServerIP() (net.IP, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:1")
	if err != nil {
		return nil, fmt.Errorf("guessing server IP: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return nil, fmt.Errorf("guessing server IP: unexpected local address %s", conn.LocalAddr())
	}
	return addr.IP.To4(), nil
}
