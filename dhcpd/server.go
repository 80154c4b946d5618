// Copyright 2016 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dhcpd answers relayed DHCP requests: DISCOVERs get an OFFER,
// REQUESTs get an ACK, with the address right after the relay's own.
package dhcpd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
)

const (
	portDHCP = 67

	defaultReadTimeout = 10 * time.Second
)

// PacketConn is the network side of a Server. *dhcp4.Conn implements
// it.
type PacketConn interface {
	Recv(b []byte) ([]byte, *net.UDPAddr, error)
	Send(b []byte, addr *net.UDPAddr) error
	SetReadDeadline(t time.Time) error
}

// A Tracer records datagrams as they cross the wire.
type Tracer interface {
	Trace(src, dst *net.UDPAddr, payload []byte) error
}

// A Server answers relayed DHCP requests, one datagram at a time.
type Server struct {
	Transformer Transformer

	// Events receives a diagnostic for every datagram that is
	// answered or dropped. If nil, events are discarded.
	Events EventSink

	// Trace, if set, sees every datagram received and sent.
	Trace Tracer

	// DropInvalid makes the server ignore packets without a usable
	// message type. By default they are answered as if they were a
	// DHCPREQUEST, which is what clients renewing with sloppy
	// option encoding expect, but also means anything that parses as
	// BOOTP with a DHCP cookie gets an ACK.
	DropInvalid bool

	// ReadTimeout bounds each wait for a datagram, so that the serve
	// loop notices cancellation. Defaults to 10s.
	ReadTimeout time.Duration
}

func (s *Server) emit(e Event) {
	if s.Events != nil {
		s.Events(e)
	}
}

// Serve answers DHCP requests arriving on conn until ctx is done or
// receiving fails. Replies go back to the address and port each
// request came from.
func (s *Server) Serve(ctx context.Context, conn PacketConn) error {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	var buf [dhcp4.MaxDatagramSize]byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}
		b, from, err := conn.Recv(buf[:])
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving DHCP packet: %w", err)
		}
		s.trace(from, nil, b)

		resp, ok := s.Handle(b, from)
		if !ok {
			continue
		}

		s.trace(nil, from, resp)
		if err = conn.Send(resp, from); err != nil {
			s.emit(Event{Kind: EventSendFailed, Peer: from, Err: err})
		}
	}
}

func (s *Server) trace(src, dst *net.UDPAddr, b []byte) {
	if s.Trace == nil {
		return
	}
	if err := s.Trace.Trace(src, dst, b); err != nil {
		// Stop tracing after the first write error.
		s.Trace = nil
	}
}

// Handle processes one datagram received from from and returns the
// encoded reply, if any. It does no I/O besides emitting events.
func (s *Server) Handle(b []byte, from *net.UDPAddr) ([]byte, bool) {
	pkt, err := dhcp4.Unmarshal(b)
	if err != nil {
		s.emit(Event{
			Kind: EventMalformed,
			Peer: from,
			Raw:  append([]byte(nil), b...),
			Err:  err,
		})
		return nil, false
	}

	if !pkt.Valid() {
		mt, _ := pkt.Type()
		s.emit(packetEvent(EventInvalidMessage, from, pkt, mt, ErrInvalidMessage))
		if s.DropInvalid {
			return nil, false
		}
		pkt.SetType(dhcp4.MsgRequest)
	}

	mt, _ := pkt.Type()
	var (
		resp *dhcp4.Packet
		kind EventKind
	)
	switch mt {
	case dhcp4.MsgDiscover:
		resp, err = s.Transformer.DiscoverToOffer(pkt)
		kind = EventOffer
	case dhcp4.MsgRequest:
		resp, err = s.Transformer.RequestToAck(pkt)
		kind = EventAck
	default:
		s.emit(packetEvent(EventUnhandledType, from, pkt, mt, fmt.Errorf("%w %s", ErrUnhandledType, mt)))
		return nil, false
	}
	if err != nil {
		s.emit(packetEvent(EventTransformFailed, from, pkt, mt, err))
		return nil, false
	}

	bs, err := resp.Marshal()
	if err != nil {
		s.emit(packetEvent(EventTransformFailed, from, pkt, mt, err))
		return nil, false
	}

	s.emit(packetEvent(kind, from, resp, mt, nil))
	return bs, true
}

func packetEvent(kind EventKind, from *net.UDPAddr, pkt *dhcp4.Packet, mt dhcp4.MessageType, err error) Event {
	return Event{
		Kind:          kind,
		Peer:          from,
		Type:          mt,
		TransactionID: pkt.TransactionID,
		HardwareAddr:  pkt.HardwareAddr(),
		YourAddr:      pkt.YourAddr,
		RelayAddr:     pkt.RelayAddr,
		Err:           err,
	}
}
