package dhcpd

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
	"github.com/jalmargyyk/pe-dhcpd/pcap"
)

// ReplayStats summarizes a replay.
type ReplayStats struct {
	// Packets is the number of records in the capture.
	Packets int
	// Requests is the number of those that were BOOTREQUESTs to UDP
	// port 67.
	Requests int
	Replies  int
}

// Replay feeds every BOOTREQUEST to port 67 found in the capture read
// from r through s.Handle, as if it had been received on the wire.
// Requests and replies are dumped to out. Nothing is sent.
func (s *Server) Replay(r io.Reader, out io.Writer) (ReplayStats, error) {
	var stats ReplayStats

	pr, err := pcap.NewReader(r)
	if err != nil {
		return stats, err
	}
	var decoder gopacket.Decoder
	switch pr.LinkType {
	case pcap.LinkEthernet:
		decoder = layers.LinkTypeEthernet
	case pcap.LinkRaw:
		decoder = layers.LinkTypeRaw
	default:
		return stats, fmt.Errorf("unsupported pcap link type %d", pr.LinkType)
	}

	for {
		rec, err := pr.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("reading packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		from, payload, ok := dhcpRequest(gopacket.NewPacket(rec.Bytes, decoder, gopacket.Default))
		if !ok {
			continue
		}
		stats.Requests++

		fmt.Fprintf(out, "#%d %s from %s\n", stats.Packets, rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"), from)
		if req, err := dhcp4.Unmarshal(payload); err != nil {
			fmt.Fprintf(out, "  undecodable: %s\n", err)
		} else {
			fmt.Fprintf(out, "  request:\n%s\n", indent(req.DebugString()))
		}

		resp, ok := s.Handle(payload, from)
		if !ok {
			fmt.Fprintf(out, "  no reply\n")
			continue
		}
		stats.Replies++
		if reply, err := dhcp4.Unmarshal(resp); err == nil {
			fmt.Fprintf(out, "  reply:\n%s\n", indent(reply.DebugString()))
		}
	}
}

// dhcpRequest extracts the source address and UDP payload of packet if
// it is a BOOTREQUEST to the DHCP server port. Replies between relays
// and servers use that port too.
func dhcpRequest(packet gopacket.Packet) (*net.UDPAddr, []byte, bool) {
	ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil, nil, false
	}
	udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || udp.DstPort != portDHCP {
		return nil, nil, false
	}
	if len(udp.Payload) == 0 || udp.Payload[0] != dhcp4.OpRequest {
		return nil, nil, false
	}
	from := &net.UDPAddr{IP: ipLayer.SrcIP, Port: int(udp.SrcPort)}
	return from, udp.Payload, true
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
