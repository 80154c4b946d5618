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

// Package dhcp4 implements the BOOTP/DHCPv4 wire format and a UDP
// socket to carry it.
package dhcp4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// Decoding errors. Unmarshal wraps them, use errors.Is to test for
// a kind.
const (
	ErrTooShort        errors.Error = "packet too short"
	ErrBadCookie       errors.Error = "bad DHCP magic cookie"
	ErrMalformedOption errors.Error = "malformed option"
)

// Op values of the BOOTP header.
const (
	OpRequest byte = 1
	OpReply   byte = 2
)

// FlagBroadcast is the flags bit a client sets when it cannot receive
// unicast before it is configured.
const FlagBroadcast uint16 = 0x8000

// HeaderLen is the size of the fixed BOOTP header plus the magic
// cookie, i.e. the offset of the first option.
const HeaderLen = 240

var magic = []byte{99, 130, 83, 99}

// MessageType is the DHCP message type carried in option 53.
type MessageType uint8

// Message types defined in RFC 2131.
const (
	MsgDiscover MessageType = iota + 1
	MsgOffer
	MsgRequest
	MsgDecline
	MsgAck
	MsgNak
	MsgRelease
	MsgInform
)

func (mt MessageType) String() string {
	switch mt {
	case MsgDiscover:
		return "DHCPDISCOVER"
	case MsgOffer:
		return "DHCPOFFER"
	case MsgRequest:
		return "DHCPREQUEST"
	case MsgDecline:
		return "DHCPDECLINE"
	case MsgAck:
		return "DHCPACK"
	case MsgNak:
		return "DHCPNAK"
	case MsgRelease:
		return "DHCPRELEASE"
	case MsgInform:
		return "DHCPINFORM"
	default:
		return fmt.Sprintf("<unknown DHCP message type %d>", uint8(mt))
	}
}

// Known reports whether mt is one of the RFC 2131 message types.
func (mt MessageType) Known() bool {
	return mt >= MsgDiscover && mt <= MsgInform
}

// Packet represents a BOOTP/DHCP packet.
//
// Address fields are kept as 4-byte net.IPs, the hardware address,
// server name and boot file areas are kept verbatim so that a decoded
// packet marshals back to the same bytes.
type Packet struct {
	Op            byte
	HType         byte
	HLen          byte
	Hops          byte
	TransactionID uint32
	Secs          uint16
	Flags         uint16

	ClientAddr net.IP
	YourAddr   net.IP
	ServerAddr net.IP
	RelayAddr  net.IP

	ClientHWAddr [16]byte
	ServerName   [64]byte
	BootFile     [128]byte

	Options Options
}

// Unmarshal parses a DHCP packet.
func Unmarshal(bs []byte) (*Packet, error) {
	if len(bs) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(bs), HeaderLen)
	}
	if !bytes.Equal(bs[236:240], magic) {
		return nil, fmt.Errorf("%w: %x", ErrBadCookie, bs[236:240])
	}

	ret := &Packet{
		Op:            bs[0],
		HType:         bs[1],
		HLen:          bs[2],
		Hops:          bs[3],
		TransactionID: binary.BigEndian.Uint32(bs[4:8]),
		Secs:          binary.BigEndian.Uint16(bs[8:10]),
		Flags:         binary.BigEndian.Uint16(bs[10:12]),
		ClientAddr:    ipv4(bs[12:16]),
		YourAddr:      ipv4(bs[16:20]),
		ServerAddr:    ipv4(bs[20:24]),
		RelayAddr:     ipv4(bs[24:28]),
	}
	copy(ret.ClientHWAddr[:], bs[28:44])
	copy(ret.ServerName[:], bs[44:108])
	copy(ret.BootFile[:], bs[108:236])

	if err := ret.Options.unmarshal(bs[HeaderLen:]); err != nil {
		return nil, fmt.Errorf("packet has malformed options section: %w", err)
	}

	return ret, nil
}

// Marshal returns the wire encoding of p.
func (p *Packet) Marshal() ([]byte, error) {
	ret := make([]byte, HeaderLen, 576)

	ret[0] = p.Op
	ret[1] = p.HType
	ret[2] = p.HLen
	ret[3] = p.Hops
	binary.BigEndian.PutUint32(ret[4:8], p.TransactionID)
	binary.BigEndian.PutUint16(ret[8:10], p.Secs)
	binary.BigEndian.PutUint16(ret[10:12], p.Flags)
	copy(ret[12:16], p.ClientAddr.To4())
	copy(ret[16:20], p.YourAddr.To4())
	copy(ret[20:24], p.ServerAddr.To4())
	copy(ret[24:28], p.RelayAddr.To4())
	copy(ret[28:44], p.ClientHWAddr[:])
	copy(ret[44:108], p.ServerName[:])
	copy(ret[108:236], p.BootFile[:])
	copy(ret[236:240], magic)

	ret, err := p.Options.marshalTo(ret)
	if err != nil {
		return nil, fmt.Errorf("packet has malformed options section: %w", err)
	}
	return ret, nil
}

// Copy returns a deep copy of p. Changes to the copy never show up
// in p.
func (p *Packet) Copy() *Packet {
	ret := *p
	ret.ClientAddr = copyIP(p.ClientAddr)
	ret.YourAddr = copyIP(p.YourAddr)
	ret.ServerAddr = copyIP(p.ServerAddr)
	ret.RelayAddr = copyIP(p.RelayAddr)
	ret.Options = p.Options.Copy()
	return &ret
}

// Type returns the message type from option 53. ok is false if the
// option is missing or malformed.
func (p *Packet) Type() (mt MessageType, ok bool) {
	opt, ok := p.Options.Get(OptMessageType)
	if !ok {
		return 0, false
	}
	b, err := opt.Byte()
	if err != nil {
		return 0, false
	}
	return MessageType(b), true
}

// SetType sets option 53.
func (p *Packet) SetType(mt MessageType) {
	p.Options.Set(MessageTypeOption(mt))
}

// Valid reports whether p carries a well-formed message type option
// with one of the known message types. Packets without a valid cookie
// never get this far, Unmarshal rejects them.
func (p *Packet) Valid() bool {
	mt, ok := p.Type()
	return ok && mt.Known()
}

// Broadcast reports whether the client asked for broadcast replies.
func (p *Packet) Broadcast() bool {
	return p.Flags&FlagBroadcast != 0
}

// HardwareAddr returns the meaningful part of the client hardware
// address field.
func (p *Packet) HardwareAddr() net.HardwareAddr {
	l := int(p.HLen)
	if l > len(p.ClientHWAddr) {
		l = len(p.ClientHWAddr)
	}
	return net.HardwareAddr(append([]byte(nil), p.ClientHWAddr[:l]...))
}

// SetHardwareAddr stores mac in the client hardware address field and
// updates HLen.
func (p *Packet) SetHardwareAddr(mac net.HardwareAddr) {
	p.ClientHWAddr = [16]byte{}
	n := copy(p.ClientHWAddr[:], mac)
	p.HLen = byte(n)
}

// HardwareAddrString returns the client hardware address in colon-hex
// notation.
func (p *Packet) HardwareAddrString() string {
	return p.HardwareAddr().String()
}

// YourAddrString returns the assigned address in dotted notation.
func (p *Packet) YourAddrString() string {
	if p.YourAddr == nil {
		return net.IPv4zero.String()
	}
	return p.YourAddr.String()
}

// DebugString prints the contents of a DHCP packet for human
// consumption.
func (p *Packet) DebugString() string {
	var b strings.Builder
	mt, _ := p.Type()
	fmt.Fprintf(&b, `DHCP op=%d type=%s
  TxID: %08x
  Broadcast: %v
  HardwareAddr: %s
  ClientAddr: %s
  YourAddr: %s
  ServerAddr: %s
  RelayAddr: %s
  Hops: %d
  Secs: %d
`, p.Op, mt, p.TransactionID, p.Broadcast(), p.HardwareAddrString(), orZero(p.ClientAddr), orZero(p.YourAddr), orZero(p.ServerAddr), orZero(p.RelayAddr), p.Hops, p.Secs)
	if sname := cString(p.ServerName[:]); sname != "" {
		fmt.Fprintf(&b, "  BootServerName: %s\n", sname)
	}
	if file := cString(p.BootFile[:]); file != "" {
		fmt.Fprintf(&b, "  BootFilename: %s\n", file)
	}
	b.WriteString("  Options:\n")
	for _, opt := range p.Options.All() {
		fmt.Fprintf(&b, "    %s\n", opt)
	}
	return b.String()
}

func ipv4(bs []byte) net.IP {
	return net.IPv4(bs[0], bs[1], bs[2], bs[3]).To4()
}

func copyIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	return append(net.IP(nil), ip...)
}

func orZero(ip net.IP) net.IP {
	if ip == nil {
		return net.IPv4zero
	}
	return ip
}

func cString(bs []byte) string {
	if i := bytes.IndexByte(bs, 0); i >= 0 {
		bs = bs[:i]
	}
	return string(bs)
}
