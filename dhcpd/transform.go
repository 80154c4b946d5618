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

package dhcpd

import (
	"fmt"
	"net"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
)

// Errors reported through events. None of them stops the server.
const (
	ErrInvalidMessage  errors.Error = "message has no valid message type option"
	ErrUnhandledType   errors.Error = "cannot handle message type"
	ErrNotRelayed      errors.Error = "packet was not relayed"
	ErrAddressOverflow errors.Error = "address space exhausted"
)

// ServerOptions are the options every reply carries.
type ServerOptions struct {
	// ServerIP is sent as the server identifier (option 54).
	ServerIP      net.IP
	SubnetMask    net.IP
	DNSServers    []net.IP
	NTPServers    []net.IP
	LeaseTime     time.Duration
	RenewalTime   time.Duration
	RebindingTime time.Duration
}

// DefaultServerOptions returns the compiled-in reply policy for a
// server reachable at serverIP.
func DefaultServerOptions(serverIP net.IP) ServerOptions {
	resolvers := []net.IP{net.IPv4(195, 10, 132, 196), net.IPv4(195, 10, 132, 203)}
	return ServerOptions{
		ServerIP:      serverIP,
		SubnetMask:    net.IPv4(255, 255, 255, 254),
		DNSServers:    resolvers,
		NTPServers:    resolvers,
		LeaseTime:     12 * time.Hour,
		RenewalTime:   6 * time.Hour,
		RebindingTime: 10*time.Hour + 30*time.Minute,
	}
}

// Validate checks that the options can be encoded and that the
// timers are ordered renewal <= rebinding < lease.
func (o ServerOptions) Validate() error {
	if o.ServerIP.To4() == nil {
		return fmt.Errorf("server identifier %q is not an IPv4 address", o.ServerIP)
	}
	if o.SubnetMask.To4() == nil {
		return fmt.Errorf("subnet mask %q is not an IPv4 address", o.SubnetMask)
	}
	for _, ips := range [][]net.IP{o.DNSServers, o.NTPServers} {
		if len(ips) == 0 || len(ips) > 63 {
			return fmt.Errorf("need between 1 and 63 DNS and NTP servers, got %d", len(ips))
		}
		for _, ip := range ips {
			if ip.To4() == nil {
				return fmt.Errorf("%q is not an IPv4 address", ip)
			}
		}
	}
	if o.RenewalTime > o.RebindingTime || o.RebindingTime >= o.LeaseTime {
		return fmt.Errorf("timers must satisfy renewal (%s) <= rebinding (%s) < lease (%s)", o.RenewalTime, o.RebindingTime, o.LeaseTime)
	}
	if o.LeaseTime > time.Duration(^uint32(0))*time.Second {
		return fmt.Errorf("lease time %s does not fit into 32 bits of seconds", o.LeaseTime)
	}
	return nil
}

// replyTags are the options a reply carries, in the order they are
// set.
var replyTags = []dhcp4.OptionTag{
	dhcp4.OptServerIdentifier,
	dhcp4.OptSubnetMask,
	dhcp4.OptRouter,
	dhcp4.OptDomainNameServer,
	dhcp4.OptLeaseTime,
	dhcp4.OptNTPServers,
	dhcp4.OptRebindingTime,
	dhcp4.OptRenewalTime,
}

// ApplyServerOptions rewrites the options of pkt so that it carries
// exactly the message type and the server's options. The client's
// parameter request list and requested address are dropped: the
// reply is authoritative, not negotiated.
func ApplyServerOptions(pkt *dhcp4.Packet, opts ServerOptions) {
	pkt.Options.Remove(dhcp4.OptParameterRequest)
	pkt.Options.Remove(dhcp4.OptRequestedIP)

	pkt.Options.Set(dhcp4.IPOption(dhcp4.OptServerIdentifier, opts.ServerIP))
	pkt.Options.Set(dhcp4.IPOption(dhcp4.OptSubnetMask, opts.SubnetMask))
	pkt.Options.Set(dhcp4.IPOption(dhcp4.OptRouter, pkt.RelayAddr))
	pkt.Options.Set(dhcp4.IPOption(dhcp4.OptDomainNameServer, opts.DNSServers...))
	pkt.Options.Set(dhcp4.Uint32Option(dhcp4.OptLeaseTime, seconds(opts.LeaseTime)))
	pkt.Options.Set(dhcp4.IPOption(dhcp4.OptNTPServers, opts.NTPServers...))
	pkt.Options.Set(dhcp4.Uint32Option(dhcp4.OptRebindingTime, seconds(opts.RebindingTime)))
	pkt.Options.Set(dhcp4.Uint32Option(dhcp4.OptRenewalTime, seconds(opts.RenewalTime)))

	pkt.Options.Retain(append(replyTags, dhcp4.OptMessageType)...)
}

func seconds(d time.Duration) uint32 {
	return uint32(d / time.Second)
}

// A Transformer turns requests into replies. It does no I/O and
// never modifies the request it is given.
type Transformer struct {
	// Addresses picks yiaddr. Nil means RelayNextAddress.
	Addresses AddressPolicy
	Options   ServerOptions
}

// DiscoverToOffer builds the DHCPOFFER answering a DHCPDISCOVER. The
// offer is always flagged broadcast, for relays and clients that
// cannot take unicast yet.
func (t *Transformer) DiscoverToOffer(req *dhcp4.Packet) (*dhcp4.Packet, error) {
	offer, err := t.reply(req, dhcp4.MsgOffer)
	if err != nil {
		return nil, err
	}
	offer.Flags |= dhcp4.FlagBroadcast
	return offer, nil
}

// RequestToAck builds the DHCPACK answering a DHCPREQUEST. The
// broadcast flag is left as the client sent it.
func (t *Transformer) RequestToAck(req *dhcp4.Packet) (*dhcp4.Packet, error) {
	return t.reply(req, dhcp4.MsgAck)
}

func (t *Transformer) reply(req *dhcp4.Packet, mt dhcp4.MessageType) (*dhcp4.Packet, error) {
	addrs := t.Addresses
	if addrs == nil {
		addrs = RelayNextAddress{}
	}
	yiaddr, err := addrs.Assign(req)
	if err != nil {
		return nil, err
	}

	resp := req.Copy()
	resp.YourAddr = yiaddr.To4()
	resp.Op = dhcp4.OpReply
	resp.SetType(mt)
	ApplyServerOptions(resp, t.Options)
	return resp, nil
}
