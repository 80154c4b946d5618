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
	"net"
	"sort"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
)

var (
	testMAC      = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	testServerIP = net.IPv4(10, 99, 0, 1)
	testRelay    = net.IPv4(192, 168, 1, 5)
)

// clientMessage builds the wire form of a relayed client message the
// way a real DHCP client library does, including a parameter request
// list, a requested address and some options the server must not
// echo.
func clientMessage(t *testing.T, mt dhcpv4.MessageType, relay net.IP, broadcast bool) []byte {
	t.Helper()

	msg, err := dhcpv4.New(
		dhcpv4.WithHwAddr(testMAC),
		dhcpv4.WithTransactionID(dhcpv4.TransactionID{0xde, 0xad, 0xbe, 0xef}),
		dhcpv4.WithMessageType(mt),
		dhcpv4.WithRequestedOptions(dhcpv4.OptionSubnetMask, dhcpv4.OptionRouter, dhcpv4.OptionDomainNameServer),
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(net.IPv4(172, 16, 0, 9))),
		dhcpv4.WithOption(dhcpv4.OptHostName("node-1")),
		dhcpv4.WithOption(dhcpv4.OptClientIdentifier([]byte{1, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})),
		dhcpv4.WithGeneric(dhcpv4.GenericOptionCode(224), []byte("private")),
	)
	require.NoError(t, err)
	msg.GatewayIPAddr = relay
	msg.HopCount = 1
	msg.NumSeconds = 3
	if broadcast {
		msg.SetBroadcast()
	} else {
		msg.SetUnicast()
	}
	return msg.ToBytes()
}

func clientPacket(t *testing.T, mt dhcpv4.MessageType, relay net.IP, broadcast bool) *dhcp4.Packet {
	t.Helper()

	pkt, err := dhcp4.Unmarshal(clientMessage(t, mt, relay, broadcast))
	require.NoError(t, err)
	return pkt
}

func testTransformer() *Transformer {
	return &Transformer{Options: DefaultServerOptions(testServerIP)}
}

func sortedTags(pkt *dhcp4.Packet) []dhcp4.OptionTag {
	tags := pkt.Options.Tags()
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func optIPs(t *testing.T, pkt *dhcp4.Packet, tag dhcp4.OptionTag) []net.IP {
	t.Helper()

	opt, ok := pkt.Options.Get(tag)
	require.Truef(t, ok, "option %s missing", tag)
	ips, err := opt.IPs()
	require.NoError(t, err)
	return ips
}

func optUint32(t *testing.T, pkt *dhcp4.Packet, tag dhcp4.OptionTag) uint32 {
	t.Helper()

	opt, ok := pkt.Options.Get(tag)
	require.Truef(t, ok, "option %s missing", tag)
	v, err := opt.Uint32()
	require.NoError(t, err)
	return v
}

func TestDiscoverToOffer(t *testing.T) {
	req := clientPacket(t, dhcpv4.MessageTypeDiscover, testRelay, false)
	before, err := req.Marshal()
	require.NoError(t, err)

	offer, err := testTransformer().DiscoverToOffer(req)
	require.NoError(t, err)

	mt, ok := offer.Type()
	require.True(t, ok)
	assert.Equal(t, dhcp4.MsgOffer, mt)
	assert.Equal(t, uint8(dhcp4.OpReply), offer.Op)
	assert.True(t, offer.Broadcast())
	assert.Equal(t, net.IPv4(192, 168, 1, 6).To4(), offer.YourAddr)

	assert.Equal(t, req.TransactionID, offer.TransactionID)
	assert.Equal(t, req.ClientHWAddr, offer.ClientHWAddr)
	assert.Equal(t, req.Hops, offer.Hops)
	assert.Equal(t, req.Secs, offer.Secs)
	assert.True(t, offer.RelayAddr.Equal(testRelay))

	after, err := req.Marshal()
	require.NoError(t, err)
	assert.Equal(t, before, after, "request was modified")
}

func TestRequestToAck(t *testing.T) {
	for _, broadcast := range []bool{false, true} {
		req := clientPacket(t, dhcpv4.MessageTypeRequest, testRelay, broadcast)

		ack, err := testTransformer().RequestToAck(req)
		require.NoError(t, err)

		mt, ok := ack.Type()
		require.True(t, ok)
		assert.Equal(t, dhcp4.MsgAck, mt)
		assert.Equal(t, uint8(dhcp4.OpReply), ack.Op)
		assert.Equal(t, req.Flags, ack.Flags)
		assert.Equal(t, broadcast, ack.Broadcast())
		assert.Equal(t, net.IPv4(192, 168, 1, 6).To4(), ack.YourAddr)
	}
}

func TestReplyOptions(t *testing.T) {
	req := clientPacket(t, dhcpv4.MessageTypeRequest, net.IPv4(10, 0, 0, 1), false)
	for _, tag := range []dhcp4.OptionTag{dhcp4.OptParameterRequest, dhcp4.OptRequestedIP} {
		_, ok := req.Options.Get(tag)
		require.Truef(t, ok, "test request lacks %s", tag)
	}

	ack, err := testTransformer().RequestToAck(req)
	require.NoError(t, err)

	assert.Equal(t, []dhcp4.OptionTag{1, 3, 6, 42, 51, 53, 54, 58, 59}, sortedTags(ack))

	resolvers := []net.IP{net.IPv4(195, 10, 132, 196).To4(), net.IPv4(195, 10, 132, 203).To4()}
	assert.Equal(t, []net.IP{testServerIP.To4()}, optIPs(t, ack, dhcp4.OptServerIdentifier))
	assert.Equal(t, []net.IP{net.IPv4(255, 255, 255, 254).To4()}, optIPs(t, ack, dhcp4.OptSubnetMask))
	assert.Equal(t, []net.IP{net.IPv4(10, 0, 0, 1).To4()}, optIPs(t, ack, dhcp4.OptRouter))
	assert.Equal(t, resolvers, optIPs(t, ack, dhcp4.OptDomainNameServer))
	assert.Equal(t, resolvers, optIPs(t, ack, dhcp4.OptNTPServers))
	assert.Equal(t, uint32(43200), optUint32(t, ack, dhcp4.OptLeaseTime))
	assert.Equal(t, uint32(37800), optUint32(t, ack, dhcp4.OptRebindingTime))
	assert.Equal(t, uint32(21600), optUint32(t, ack, dhcp4.OptRenewalTime))
	assert.Equal(t, net.IPv4(10, 0, 0, 2).To4(), ack.YourAddr)
}

func TestApplyServerOptionsOrder(t *testing.T) {
	pkt := &dhcp4.Packet{RelayAddr: net.IPv4(10, 0, 0, 1).To4()}
	pkt.SetType(dhcp4.MsgAck)
	pkt.Options.Set(dhcp4.Option{Tag: dhcp4.OptRelayAgentInfo, Value: []byte{1, 2, 'x', 'y'}})

	ApplyServerOptions(pkt, DefaultServerOptions(testServerIP))

	// The message type stays first, the rest follows in the order
	// the options are set.
	assert.Equal(t, []dhcp4.OptionTag{53, 54, 1, 3, 6, 51, 42, 59, 58}, pkt.Options.Tags())
}

func TestTransformErrors(t *testing.T) {
	tr := testTransformer()

	_, err := tr.DiscoverToOffer(clientPacket(t, dhcpv4.MessageTypeDiscover, net.IPv4zero, false))
	assert.ErrorIs(t, err, ErrNotRelayed)

	_, err = tr.RequestToAck(clientPacket(t, dhcpv4.MessageTypeRequest, net.IPv4bcast, false))
	assert.ErrorIs(t, err, ErrAddressOverflow)
}

type fixedAddress net.IP

func (f fixedAddress) Assign(*dhcp4.Packet) (net.IP, error) {
	return net.IP(f), nil
}

func TestTransformerPolicy(t *testing.T) {
	tr := testTransformer()
	tr.Addresses = fixedAddress(net.IPv4(10, 1, 2, 3))

	offer, err := tr.DiscoverToOffer(clientPacket(t, dhcpv4.MessageTypeDiscover, testRelay, false))
	require.NoError(t, err)
	assert.Equal(t, net.IPv4(10, 1, 2, 3).To4(), offer.YourAddr)
}

// TestReplyInterop checks that other DHCP implementations read our
// replies the way we mean them.
func TestReplyInterop(t *testing.T) {
	req := clientPacket(t, dhcpv4.MessageTypeDiscover, testRelay, false)
	offer, err := testTransformer().DiscoverToOffer(req)
	require.NoError(t, err)
	bs, err := offer.Marshal()
	require.NoError(t, err)

	msg, err := dhcpv4.FromBytes(bs)
	require.NoError(t, err)
	assert.Equal(t, dhcpv4.MessageTypeOffer, msg.MessageType())
	assert.Equal(t, dhcpv4.OpcodeBootReply, msg.OpCode)
	assert.True(t, msg.IsBroadcast())
	assert.True(t, msg.YourIPAddr.Equal(net.IPv4(192, 168, 1, 6)))
	assert.True(t, msg.ServerIdentifier().Equal(testServerIP))
	assert.Equal(t, net.IPMask{255, 255, 255, 254}, msg.SubnetMask())
	require.Len(t, msg.Router(), 1)
	assert.True(t, msg.Router()[0].Equal(testRelay))
	assert.Len(t, msg.DNS(), 2)
	assert.Len(t, msg.NTPServers(), 2)
	assert.Equal(t, 12*time.Hour, msg.IPAddressLeaseTime(0))
	assert.Equal(t, testMAC, msg.ClientHWAddr)
	assert.Nil(t, msg.ParameterRequestList())
	assert.Nil(t, msg.RequestedIPAddress())

	var layer layers.DHCPv4
	require.NoError(t, layer.DecodeFromBytes(bs, gopacket.NilDecodeFeedback))
	assert.Equal(t, layers.DHCPOpReply, layer.Operation)
	assert.True(t, layer.YourClientIP.Equal(net.IPv4(192, 168, 1, 6)))
	assert.True(t, layer.RelayAgentIP.Equal(testRelay))

	var seen []layers.DHCPOpt
	for _, o := range layer.Options {
		if o.Type == layers.DHCPOptMessageType {
			require.Len(t, o.Data, 1)
			assert.Equal(t, byte(layers.DHCPMsgTypeOffer), o.Data[0])
		}
		seen = append(seen, o.Type)
	}
	assert.ElementsMatch(t, []layers.DHCPOpt{
		layers.DHCPOptMessageType,
		layers.DHCPOptServerID,
		layers.DHCPOptSubnetMask,
		layers.DHCPOptRouter,
		layers.DHCPOptDNS,
		layers.DHCPOptLeaseTime,
		layers.DHCPOptNTPServers,
		layers.DHCPOptT2,
		layers.DHCPOptT1,
	}, seen)
}

func TestServerOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(o *ServerOptions)
		wantErr bool
	}{{
		name:   "defaults",
		modify: func(o *ServerOptions) {},
	}, {
		name:    "no server ip",
		modify:  func(o *ServerOptions) { o.ServerIP = nil },
		wantErr: true,
	}, {
		name:    "ipv6 dns",
		modify:  func(o *ServerOptions) { o.DNSServers = []net.IP{net.ParseIP("2001:db8::1")} },
		wantErr: true,
	}, {
		name:    "no ntp servers",
		modify:  func(o *ServerOptions) { o.NTPServers = nil },
		wantErr: true,
	}, {
		name:    "renewal after rebinding",
		modify:  func(o *ServerOptions) { o.RenewalTime = 11 * time.Hour },
		wantErr: true,
	}, {
		name:    "rebinding equals lease",
		modify:  func(o *ServerOptions) { o.RebindingTime = o.LeaseTime },
		wantErr: true,
	}, {
		name: "lease too long",
		modify: func(o *ServerOptions) {
			o.LeaseTime = 200 * 365 * 24 * time.Hour
		},
		wantErr: true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultServerOptions(testServerIP)
			tc.modify(&o)
			err := o.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
