package pcap

import (
	"io"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Writer serializes Packets to an io.Writer. Timestamps are written
// with microsecond resolution, which every pcap reader understands.
//
// A Writer is safe for concurrent use.
type Writer struct {
	LinkType LinkType
	SnapLen  uint32

	mu            sync.Mutex
	w             *pcapgo.Writer
	headerWritten bool
}

// NewWriter returns a Writer for packets of the given link type.
func NewWriter(w io.Writer, lt LinkType) *Writer {
	return &Writer{
		LinkType: lt,
		SnapLen:  65535,
		w:        pcapgo.NewWriter(w),
	}
}

// Put serializes pkt. The file header is written before the first
// packet. A zero pkt.Length means the packet was captured in full.
func (w *Writer) Put(pkt *Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.headerWritten {
		if err := w.w.WriteFileHeader(w.SnapLen, layers.LinkType(w.LinkType)); err != nil {
			return err
		}
		w.headerWritten = true
	}

	origLen := pkt.Length
	if origLen == 0 {
		origLen = len(pkt.Bytes)
	}
	return w.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     pkt.Timestamp,
		CaptureLength: len(pkt.Bytes),
		Length:        origLen,
	}, pkt.Bytes)
}
