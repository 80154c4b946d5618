package dhcpd

import (
	"net"

	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
)

// EventKind classifies what happened to a datagram.
type EventKind int

// Events emitted by Server.
const (
	// EventMalformed: the datagram could not be decoded and was
	// dropped. Raw holds the datagram.
	EventMalformed EventKind = iota
	// EventInvalidMessage: the packet had no usable message type.
	// Dropped if Server.DropInvalid, otherwise answered as a
	// DHCPREQUEST.
	EventInvalidMessage
	// EventUnhandledType: a message type other than DISCOVER or
	// REQUEST, dropped.
	EventUnhandledType
	EventOffer
	EventAck
	// EventTransformFailed: no reply could be built, e.g. because
	// the address policy had nothing to give.
	EventTransformFailed
	EventSendFailed
)

func (k EventKind) String() string {
	switch k {
	case EventMalformed:
		return "malformed"
	case EventInvalidMessage:
		return "invalid_message"
	case EventUnhandledType:
		return "unhandled_type"
	case EventOffer:
		return "offer"
	case EventAck:
		return "ack"
	case EventTransformFailed:
		return "transform_failed"
	case EventSendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// An Event is a structured diagnostic about one datagram. Only the
// fields that make sense for Kind are set.
type Event struct {
	Kind EventKind
	// Peer is the address the datagram came from, if known.
	Peer *net.UDPAddr

	Raw []byte

	Type          dhcp4.MessageType
	TransactionID uint32
	HardwareAddr  net.HardwareAddr
	YourAddr      net.IP
	RelayAddr     net.IP

	Err error
}

// An EventSink consumes events. Sinks are called synchronously from
// the serving goroutine, so a slow sink slows down serving.
type EventSink func(Event)

// MultiSink returns a sink that hands every event to each of sinks in
// order. Nil sinks are skipped.
func MultiSink(sinks ...EventSink) EventSink {
	return func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s(e)
			}
		}
	}
}
