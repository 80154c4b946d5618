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
	"go.uber.org/zap"
)

// LogEvents returns a sink that writes events to log. Replies are
// logged at info, drops at debug, and failures at error.
func LogEvents(log *zap.SugaredLogger) EventSink {
	return func(e Event) {
		if log == nil {
			return
		}
		l := log
		if e.Peer != nil {
			l = l.With("peer", e.Peer.String())
		}

		switch e.Kind {
		case EventOffer:
			l.Infof("Offering %s to %s via %s", e.YourAddr, e.HardwareAddr, e.RelayAddr)
		case EventAck:
			l.Infof("Acknowledging %s has %s", e.HardwareAddr, e.YourAddr)
		case EventUnhandledType:
			l.Debugf("Received %s but cannot handle it", e.Type)
		case EventInvalidMessage:
			l.Debugw("Message has no valid message type", "xid", e.TransactionID, "mac", e.HardwareAddr.String())
		case EventMalformed:
			l.Errorf("Processing error: %s", e.Err)
			l.Debugf("Dumping message packet for debug: % x", e.Raw)
		case EventTransformFailed:
			l.Errorw("Cannot build reply", "xid", e.TransactionID, "mac", e.HardwareAddr.String(), "giaddr", e.RelayAddr.String(), "error", e.Err)
		case EventSendFailed:
			l.Errorw("Failed to send reply", "error", e.Err)
		default:
			l.Warnw("Unknown event", "kind", e.Kind.String(), "error", e.Err)
		}
	}
}
