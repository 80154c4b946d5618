// Package pcap reads and writes the classic libpcap capture format.
//
// pe-dhcpd uses it to record the datagrams it handles and to replay
// captures taken elsewhere (tcpdump -w) through the reply logic.
package pcap

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket/pcapgo"
)

// LinkType describes the contents of each packet in a pcap.
type LinkType uint32

// Some of the more commonly used LinkTypes.
const (
	LinkEthernet LinkType = 1
	LinkRaw      LinkType = 101
)

// Reader extracts packets from a pcap file.
type Reader struct {
	LinkType LinkType
	SnapLen  uint32

	r *pcapgo.Reader
}

// Packet is one raw packet and its metadata.
type Packet struct {
	Timestamp time.Time
	// Length is the length of the packet on the wire, which is more
	// than len(Bytes) if the capture was truncated.
	Length int
	Bytes  []byte
}

// NewReader returns a new Reader that decodes pcap data from r. Both
// byte orders and both timestamp resolutions are understood.
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading pcap header: %w", err)
	}
	return &Reader{
		LinkType: LinkType(pr.LinkType()),
		SnapLen:  pr.Snaplen(),
		r:        pr,
	}, nil
}

// Next returns the next packet in r. It returns io.EOF after the last
// packet, and io.ErrUnexpectedEOF if the capture is cut short in the
// middle of a packet.
func (r *Reader) Next() (*Packet, error) {
	bs, ci, err := r.r.ReadPacketData()
	if err != nil {
		return nil, err
	}
	return &Packet{
		Timestamp: ci.Timestamp,
		Length:    ci.Length,
		Bytes:     bs,
	}, nil
}

// ReadAll returns all remaining packets of r.
func (r *Reader) ReadAll() ([]*Packet, error) {
	var ret []*Packet
	for {
		pkt, err := r.Next()
		if err == io.EOF {
			return ret, nil
		}
		if err != nil {
			return ret, err
		}
		ret = append(ret, pkt)
	}
}
