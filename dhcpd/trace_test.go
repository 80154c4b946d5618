package dhcpd

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalmargyyk/pe-dhcpd/pcap"
)

var testLocal = &net.UDPAddr{IP: net.IPv4(10, 99, 0, 1), Port: 67}

func newTestTrace(buf *bytes.Buffer) *PcapTrace {
	tr := NewPcapTrace(buf, testLocal)
	ts := time.Unix(1700000000, 0)
	tr.now = func() time.Time {
		ts = ts.Add(time.Millisecond)
		return ts
	}
	return tr
}

func TestPcapTrace(t *testing.T) {
	var buf bytes.Buffer
	tr := newTestTrace(&buf)

	payload := []byte("hello relay")
	require.NoError(t, tr.Trace(testPeer, nil, payload))
	require.NoError(t, tr.Trace(nil, testPeer, payload))

	r, err := pcap.NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, pcap.LinkRaw, r.LinkType)
	pkts, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	assert.True(t, pkts[0].Timestamp.Before(pkts[1].Timestamp))

	for i, want := range []struct{ src, dst *net.UDPAddr }{
		{testPeer, testLocal},
		{testLocal, testPeer},
	} {
		packet := gopacket.NewPacket(pkts[i].Bytes, layers.LinkTypeRaw, gopacket.Default)

		ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		require.True(t, ok)
		assert.True(t, ip.SrcIP.Equal(want.src.IP))
		assert.True(t, ip.DstIP.Equal(want.dst.IP))
		assert.Equal(t, uint16(20+8+len(payload)), ip.Length)

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		require.True(t, ok)
		assert.Equal(t, layers.UDPPort(want.src.Port), udp.SrcPort)
		assert.Equal(t, layers.UDPPort(want.dst.Port), udp.DstPort)
		assert.NotZero(t, udp.Checksum)
		assert.Equal(t, payload, udp.Payload)
	}
}

func TestPcapTraceRejectsIPv6(t *testing.T) {
	var buf bytes.Buffer
	tr := newTestTrace(&buf)

	err := tr.Trace(&net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 67}, nil, []byte{1})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestReplayTrace(t *testing.T) {
	var buf bytes.Buffer
	s, _ := testServer()
	s.Trace = newTestTrace(&buf)

	// Record a short exchange, then replay the recording.
	for _, mt := range []dhcpv4.MessageType{dhcpv4.MessageTypeDiscover, dhcpv4.MessageTypeRequest, dhcpv4.MessageTypeRelease} {
		in := clientMessage(t, mt, testRelay, false)
		s.trace(testPeer, nil, in)
		if resp, ok := s.Handle(in, testPeer); ok {
			s.trace(nil, testPeer, resp)
		}
	}
	require.NotNil(t, s.Trace)

	replay, _ := testServer()
	var out bytes.Buffer
	stats, err := replay.Replay(&buf, &out)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Packets: 5, Requests: 3, Replies: 2}, stats)

	dump := out.String()
	assert.Equal(t, 1, strings.Count(dump, "type=DHCPOFFER"))
	assert.Equal(t, 1, strings.Count(dump, "type=DHCPACK"))
	assert.Equal(t, 1, strings.Count(dump, "no reply"))
	assert.Contains(t, dump, "YourAddr: 192.168.1.6")
	assert.Contains(t, dump, "from 192.168.1.5:67")
}

func TestReplayEthernet(t *testing.T) {
	var buf bytes.Buffer
	w := pcap.NewWriter(&buf, pcap.LinkEthernet)

	frame := func(payload []byte, dstPort int) []byte {
		eth := &layers.Ethernet{
			SrcMAC:       testMAC,
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    testRelay.To4(),
			DstIP:    testLocal.IP.To4(),
		}
		udp := &layers.UDP{SrcPort: 67, DstPort: layers.UDPPort(dstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		sb := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(sb,
			gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
			eth, ip, udp, gopacket.Payload(payload)))
		return sb.Bytes()
	}

	discover := clientMessage(t, dhcpv4.MessageTypeDiscover, testRelay, true)
	for _, f := range [][]byte{
		frame(discover, 67),
		frame(discover, 68),
		frame([]byte("not dhcp"), 53),
	} {
		require.NoError(t, w.Put(&pcap.Packet{Timestamp: time.Unix(1700000000, 0), Bytes: f}))
	}

	s, events := testServer()
	var out bytes.Buffer
	stats, err := s.Replay(&buf, &out)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Packets: 3, Requests: 1, Replies: 1}, stats)
	assert.Equal(t, []EventKind{EventOffer}, kinds(*events))
}

func TestReplayErrors(t *testing.T) {
	s, _ := testServer()

	_, err := s.Replay(strings.NewReader("not a pcap"), &bytes.Buffer{})
	assert.Error(t, err)

	var buf bytes.Buffer
	w := pcap.NewWriter(&buf, pcap.LinkType(105))
	require.NoError(t, w.Put(&pcap.Packet{Bytes: []byte{1}}))
	_, err = s.Replay(&buf, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported pcap link type 105")
}
