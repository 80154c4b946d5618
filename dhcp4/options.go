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
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// OptionTag is the identifier of a DHCP option.
type OptionTag uint8

// DHCP options that pe-dhcpd understands. Everything else is carried
// around as opaque bytes.
const (
	OptPad              OptionTag = 0
	OptSubnetMask       OptionTag = 1
	OptRouter           OptionTag = 3
	OptDomainNameServer OptionTag = 6
	OptHostname         OptionTag = 12
	OptNTPServers       OptionTag = 42
	OptRequestedIP      OptionTag = 50
	OptLeaseTime        OptionTag = 51
	OptMessageType      OptionTag = 53
	OptServerIdentifier OptionTag = 54
	OptParameterRequest OptionTag = 55
	OptRenewalTime      OptionTag = 58
	OptRebindingTime    OptionTag = 59
	OptClientIdentifier OptionTag = 61
	OptRelayAgentInfo   OptionTag = 82
	OptEnd              OptionTag = 255
)

// OptionKind describes how the value of an option is interpreted.
type OptionKind int

// Option value encodings.
const (
	KindOpaque OptionKind = iota
	KindIP
	KindIPList
	KindUint32
	KindUint16
	KindMessageType
	KindTagList
	KindString
)

type optionInfo struct {
	name string
	kind OptionKind
}

var registry = map[OptionTag]optionInfo{
	OptSubnetMask:       {"subnet-mask", KindIP},
	OptRouter:           {"router", KindIPList},
	OptDomainNameServer: {"domain-name-server", KindIPList},
	OptHostname:         {"hostname", KindString},
	OptNTPServers:       {"ntp-servers", KindIPList},
	OptRequestedIP:      {"requested-ip", KindIP},
	OptLeaseTime:        {"lease-time", KindUint32},
	OptMessageType:      {"message-type", KindMessageType},
	OptServerIdentifier: {"server-identifier", KindIP},
	OptParameterRequest: {"parameter-request-list", KindTagList},
	OptRenewalTime:      {"renewal-time", KindUint32},
	OptRebindingTime:    {"rebinding-time", KindUint32},
	OptClientIdentifier: {"client-identifier", KindOpaque},
	OptRelayAgentInfo:   {"relay-agent-information", KindOpaque},
}

// Kind returns the value encoding of t. Unknown tags are KindOpaque.
func (t OptionTag) Kind() OptionKind {
	return registry[t].kind
}

func (t OptionTag) String() string {
	if info, ok := registry[t]; ok {
		return info.name
	}
	return fmt.Sprintf("option-%d", uint8(t))
}

// Option is a single tag-length-value DHCP option.
type Option struct {
	Tag   OptionTag
	Value []byte
}

// IPOption returns an option whose value is the concatenation of ips.
func IPOption(tag OptionTag, ips ...net.IP) Option {
	v := make([]byte, 0, 4*len(ips))
	for _, ip := range ips {
		v = append(v, ip.To4()...)
	}
	return Option{Tag: tag, Value: v}
}

// Uint32Option returns an option holding v in network byte order.
func Uint32Option(tag OptionTag, v uint32) Option {
	bs := make([]byte, 4)
	binary.BigEndian.PutUint32(bs, v)
	return Option{Tag: tag, Value: bs}
}

// Uint16Option returns an option holding v in network byte order.
func Uint16Option(tag OptionTag, v uint16) Option {
	bs := make([]byte, 2)
	binary.BigEndian.PutUint16(bs, v)
	return Option{Tag: tag, Value: bs}
}

// MessageTypeOption returns option 53 set to t.
func MessageTypeOption(t MessageType) Option {
	return Option{Tag: OptMessageType, Value: []byte{byte(t)}}
}

// Encode returns the wire encoding of o.
func (o Option) Encode() ([]byte, error) {
	if o.Tag == OptPad || o.Tag == OptEnd {
		return nil, fmt.Errorf("option %d cannot carry a value", o.Tag)
	}
	if len(o.Value) > 255 {
		return nil, fmt.Errorf("DHCP option %d has value >255 bytes", o.Tag)
	}
	ret := make([]byte, 2+len(o.Value))
	ret[0] = byte(o.Tag)
	ret[1] = byte(len(o.Value))
	copy(ret[2:], o.Value)
	return ret, nil
}

// DecodeOption parses the option starting at b[offset]. It returns
// the option and the number of bytes it occupied.
func DecodeOption(b []byte, offset int) (Option, int, error) {
	if offset+2 > len(b) {
		return Option{}, 0, fmt.Errorf("%w: option at offset %d has no length byte", ErrMalformedOption, offset)
	}
	tag, l := OptionTag(b[offset]), int(b[offset+1])
	if offset+2+l > len(b) {
		return Option{}, 0, fmt.Errorf("%w: option %d claims to have %d bytes of payload, but only has %d bytes", ErrMalformedOption, tag, l, len(b)-offset-2)
	}
	v := make([]byte, l)
	copy(v, b[offset+2:offset+2+l])
	return Option{Tag: tag, Value: v}, 2 + l, nil
}

// Byte returns the value of a single-byte option.
func (o Option) Byte() (byte, error) {
	if len(o.Value) != 1 {
		return 0, fmt.Errorf("option %d is %d bytes, want 1", o.Tag, len(o.Value))
	}
	return o.Value[0], nil
}

// Uint16 returns the value of a 2-byte option.
func (o Option) Uint16() (uint16, error) {
	if len(o.Value) != 2 {
		return 0, fmt.Errorf("option %d is %d bytes, want 2", o.Tag, len(o.Value))
	}
	return binary.BigEndian.Uint16(o.Value), nil
}

// Uint32 returns the value of a 4-byte option.
func (o Option) Uint32() (uint32, error) {
	if len(o.Value) != 4 {
		return 0, fmt.Errorf("option %d is %d bytes, want 4", o.Tag, len(o.Value))
	}
	return binary.BigEndian.Uint32(o.Value), nil
}

// IP returns the value of an option holding exactly one IPv4 address.
func (o Option) IP() (net.IP, error) {
	if len(o.Value) != 4 {
		return nil, fmt.Errorf("option %d is %d bytes, want 4", o.Tag, len(o.Value))
	}
	return net.IP(append([]byte(nil), o.Value...)), nil
}

// IPs returns the value of an option holding a list of IPv4 addresses.
func (o Option) IPs() ([]net.IP, error) {
	if len(o.Value) == 0 || len(o.Value)%4 != 0 {
		return nil, fmt.Errorf("option %d is %d bytes, want a non-zero multiple of 4", o.Tag, len(o.Value))
	}
	ret := make([]net.IP, 0, len(o.Value)/4)
	for i := 0; i < len(o.Value); i += 4 {
		ret = append(ret, net.IP(append([]byte(nil), o.Value[i:i+4]...)))
	}
	return ret, nil
}

// String formats the value according to the registered kind of the
// option, falling back to hex when the value doesn't fit.
func (o Option) String() string {
	return fmt.Sprintf("%s(%d)=%s", o.Tag, uint8(o.Tag), o.valueString())
}

func (o Option) valueString() string {
	switch o.Tag.Kind() {
	case KindIP:
		if ip, err := o.IP(); err == nil {
			return ip.String()
		}
	case KindIPList:
		if ips, err := o.IPs(); err == nil {
			ss := make([]string, len(ips))
			for i, ip := range ips {
				ss[i] = ip.String()
			}
			return strings.Join(ss, ",")
		}
	case KindUint32:
		if v, err := o.Uint32(); err == nil {
			return fmt.Sprint(v)
		}
	case KindUint16:
		if v, err := o.Uint16(); err == nil {
			return fmt.Sprint(v)
		}
	case KindMessageType:
		if v, err := o.Byte(); err == nil {
			return MessageType(v).String()
		}
	case KindTagList:
		ss := make([]string, len(o.Value))
		for i, t := range o.Value {
			ss[i] = fmt.Sprint(t)
		}
		return "[" + strings.Join(ss, " ") + "]"
	case KindString:
		return fmt.Sprintf("%q", o.Value)
	}
	return fmt.Sprintf("%x", o.Value)
}

// Options is the ordered option list of a packet. Tags are unique:
// Set replaces an existing option in place, so the order in which
// tags were first seen is preserved.
//
// The zero value is an empty list ready to use.
type Options struct {
	opts []Option
}

// Get returns the option with the given tag, if present.
func (o *Options) Get(tag OptionTag) (Option, bool) {
	for _, opt := range o.opts {
		if opt.Tag == tag {
			return opt, true
		}
	}
	return Option{}, false
}

// Set replaces the option with opt's tag, or appends opt if the tag
// is not present yet.
func (o *Options) Set(opt Option) {
	for i := range o.opts {
		if o.opts[i].Tag == opt.Tag {
			o.opts[i] = opt
			return
		}
	}
	o.opts = append(o.opts, opt)
}

// Remove deletes the option with the given tag. Removing an absent
// tag does nothing.
func (o *Options) Remove(tag OptionTag) {
	for i := range o.opts {
		if o.opts[i].Tag == tag {
			o.opts = append(o.opts[:i], o.opts[i+1:]...)
			return
		}
	}
}

// Retain removes every option whose tag is not in keep.
func (o *Options) Retain(keep ...OptionTag) {
	ret := o.opts[:0]
	for _, opt := range o.opts {
		for _, k := range keep {
			if opt.Tag == k {
				ret = append(ret, opt)
				break
			}
		}
	}
	for i := len(ret); i < len(o.opts); i++ {
		o.opts[i] = Option{}
	}
	o.opts = ret
}

// Len returns the number of options.
func (o *Options) Len() int {
	return len(o.opts)
}

// Tags returns the option tags in order.
func (o *Options) Tags() []OptionTag {
	ret := make([]OptionTag, len(o.opts))
	for i, opt := range o.opts {
		ret[i] = opt.Tag
	}
	return ret
}

// All returns the options in order. The returned slice must not be
// modified.
func (o *Options) All() []Option {
	return o.opts
}

// Copy returns a deep copy of o.
func (o *Options) Copy() Options {
	if o.opts == nil {
		return Options{}
	}
	ret := make([]Option, len(o.opts))
	for i, opt := range o.opts {
		ret[i] = Option{Tag: opt.Tag, Value: append([]byte(nil), opt.Value...)}
	}
	return Options{opts: ret}
}

// unmarshal parses the options section of a packet. Parsing stops at
// the end marker or when bs runs out.
func (o *Options) unmarshal(bs []byte) error {
	for off := 0; off < len(bs); {
		switch OptionTag(bs[off]) {
		case OptPad:
			off++
		case OptEnd:
			return nil
		default:
			opt, n, err := DecodeOption(bs, off)
			if err != nil {
				return err
			}
			o.Set(opt)
			off += n
		}
	}
	return nil
}

// marshalTo appends the wire encoding of o, including the end marker,
// to b.
func (o *Options) marshalTo(b []byte) ([]byte, error) {
	for _, opt := range o.opts {
		bs, err := opt.Encode()
		if err != nil {
			return nil, err
		}
		b = append(b, bs...)
	}
	return append(b, byte(OptEnd)), nil
}
