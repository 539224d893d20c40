// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"

	"github.com/ice-blockchain/permafrost/model"
)

type (
	// Relay is the outgoing half of a relay connection. SendIfConnected
	// silently no-ops while the connection is down, it never errors for
	// that case.
	Relay interface {
		URL() string
		IsConnected() bool
		SendIfConnected(envelope model.Envelope)
	}

	// Listener receives transport callbacks. The core never touches raw
	// sockets directly, everything arrives through this interface.
	Listener interface {
		OnIncomingMessage(relay Relay, raw []byte, parsed model.Envelope)
		OnConnecting(relay Relay)
		OnDisconnected(relay Relay)
	}

	// Client lets the authenticator ask for all active subscriptions to be
	// resent once a relay starts trusting the connection.
	Client interface {
		RenewFilters(relay Relay)
	}

	// Signer produces signed events on behalf of one logged-in key. Sign may
	// suspend on user interaction and is expected to fail with the typed
	// model errors (rejected, timed out, signer not found).
	Signer interface {
		PubKey() model.HexKey
		Sign(ctx context.Context, event *model.Event) error
	}
)
