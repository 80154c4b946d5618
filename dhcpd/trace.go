package dhcpd

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/jalmargyyk/pe-dhcpd/pcap"
)

// PcapTrace is a Tracer that writes datagrams into a pcap capture as
// raw IPv4/UDP packets, readable by tcpdump and wireshark.
type PcapTrace struct {
	// Local stands in for the nil side of a traced datagram, i.e.
	// this server. Defaults to 0.0.0.0:67.
	Local *net.UDPAddr

	w   *pcap.Writer
	now func() time.Time
}

// NewPcapTrace returns a PcapTrace writing to w.
func NewPcapTrace(w io.Writer, local *net.UDPAddr) *PcapTrace {
	return &PcapTrace{
		Local: local,
		w:     pcap.NewWriter(w, pcap.LinkRaw),
		now:   time.Now,
	}
}

func (t *PcapTrace) local() *net.UDPAddr {
	if t.Local != nil {
		return t.Local
	}
	return &net.UDPAddr{IP: net.IPv4zero, Port: portDHCP}
}

// Trace records payload as sent from src to dst. A nil address is
// replaced by t.Local.
func (t *PcapTrace) Trace(src, dst *net.UDPAddr, payload []byte) error {
	if src == nil {
		src = t.local()
	}
	if dst == nil {
		dst = t.local()
	}
	srcIP, dstIP := src.IP.To4(), dst.IP.To4()
	if srcIP == nil || dstIP == nil {
		return fmt.Errorf("cannot trace %s -> %s: not IPv4", src, dst)
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serializing traced datagram: %w", err)
	}

	return t.w.Put(&pcap.Packet{
		Timestamp: t.now(),
		Bytes:     buf.Bytes(),
	})
}
