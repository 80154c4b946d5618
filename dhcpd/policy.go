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

	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
)

// An AddressPolicy picks the address offered to the client of a
// request.
//
// Assign must not modify pkt.
type AddressPolicy interface {
	Assign(pkt *dhcp4.Packet) (net.IP, error)
}

// RelayNextAddress hands out the address right after the relay
// agent's own address. Every relay serves exactly one client, which
// sits on a /31 with the relay as its router.
//
// There is no bookkeeping: two clients behind the same relay get the
// same address.
type RelayNextAddress struct{}

// Assign implements AddressPolicy.
func (RelayNextAddress) Assign(pkt *dhcp4.Packet) (net.IP, error) {
	relay := pkt.RelayAddr.To4()
	if relay == nil || relay.Equal(net.IPv4zero) {
		return nil, fmt.Errorf("%w: no relay agent address in packet from %s", ErrNotRelayed, pkt.HardwareAddrString())
	}
	next := nextIP(relay)
	if next.Equal(net.IPv4zero) {
		return nil, fmt.Errorf("%w: no address after relay %s", ErrAddressOverflow, relay)
	}
	return next, nil
}

// nextIP returns ip+1, wrapping around to 0.0.0.0 after
// 255.255.255.255.
func nextIP(ip net.IP) net.IP {
	ip = ip.To4()
	if ip == nil {
		return nil
	}
	ret := net.IPv4(ip[0], ip[1], ip[2], ip[3]).To4()
	for i := 3; i >= 0; i-- {
		ret[i]++
		if ret[i] != 0 {
			break
		}
	}
	return ret
}
