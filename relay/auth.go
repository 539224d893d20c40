// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip42"

	"github.com/ice-blockchain/permafrost/model"
)

type (
	AuthStatus uint8

	// Authenticator answers NIP-42 AUTH challenges. Per connection it
	// remembers which (signer, challenge) pairs were already answered, so a
	// relay repeating its challenge never triggers a duplicate signature,
	// and it maps in-flight auth event IDs to their pending status so OK
	// responses can be attributed.
	Authenticator struct {
		client  Client
		signers func() []Signer
		mx      sync.Mutex
		perURL  map[string]*authState
	}

	challengeKey struct {
		PubKey    model.HexKey
		Challenge string
	}

	authState struct {
		challengesSent  map[challengeKey]struct{}
		responseWatcher map[string]AuthStatus
		succeeded       bool
	}
)

const (
	AuthStatusAuthenticating AuthStatus = iota + 1
	AuthStatusAuthenticated
	AuthStatusRejected
)

func NewAuthenticator(client Client, signers func() []Signer) *Authenticator {
	return &Authenticator{client: client, signers: signers, perURL: make(map[string]*authState)}
}

// OnConnect resets the per-connection auth state. A reconnected relay issues
// a fresh challenge and everything answered before is void.
func (a *Authenticator) OnConnect(r Relay) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.perURL[r.URL()] = newAuthState()
}

func (a *Authenticator) OnDisconnect(r Relay) {
	a.mx.Lock()
	defer a.mx.Unlock()
	delete(a.perURL, r.URL())
}

// OnAuthChallenge signs and sends one auth event per signer that has not yet
// answered this exact challenge on this connection. A failing signer does not
// block the others, their errors are aggregated.
func (a *Authenticator) OnAuthChallenge(ctx context.Context, r Relay, challenge string) error {
	var errs *multierror.Error
	for _, signer := range a.signers() {
		key := challengeKey{PubKey: signer.PubKey(), Challenge: challenge}
		if !a.markChallengeSent(r.URL(), key) {
			continue
		}
		event := &model.Event{Event: nip42.CreateUnsignedAuthEvent(challenge, string(signer.PubKey()), r.URL())}
		if err := signer.Sign(ctx, event); err != nil {
			a.unmarkChallengeSent(r.URL(), key)
			errs = multierror.Append(errs, errors.Wrapf(err, "failed to sign auth event for %v", signer.PubKey()))

			continue
		}
		a.watchResponse(r.URL(), event.ID)
		r.SendIfConnected(&nostr.AuthEnvelope{Event: event.Event})
	}

	return errs.ErrorOrNil()
}

// CheckAuthResults consumes an OK response for a previously sent auth event.
// It returns true only the first time this connection transitions to
// authenticated, in which case every active subscription is resent: filters
// assembled before auth may have been silently restricted by the relay.
func (a *Authenticator) CheckAuthResults(r Relay, eventID string, success bool) bool {
	a.mx.Lock()
	state := a.perURL[r.URL()]
	if state == nil {
		a.mx.Unlock()

		return false
	}
	status, watched := state.responseWatcher[eventID]
	if !watched || status != AuthStatusAuthenticating {
		a.mx.Unlock()

		return false
	}
	if !success {
		state.responseWatcher[eventID] = AuthStatusRejected
		a.mx.Unlock()
		log.Printf("WARN: relay %v rejected auth event %v", r.URL(), eventID)

		return false
	}
	state.responseWatcher[eventID] = AuthStatusAuthenticated
	newlyAuthenticated := !state.succeeded
	state.succeeded = true
	a.mx.Unlock()

	if newlyAuthenticated {
		a.client.RenewFilters(r)
	}

	return newlyAuthenticated
}

// HasFinishedAuthentication reports whether no auth events are still awaiting
// an OK on this connection.
func (a *Authenticator) HasFinishedAuthentication(r Relay) bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	state := a.perURL[r.URL()]
	if state == nil {
		return true
	}
	for _, status := range state.responseWatcher {
		if status == AuthStatusAuthenticating {
			return false
		}
	}

	return true
}

// IsAuthenticated reports whether an auth event of ours was accepted on the
// current connection.
func (a *Authenticator) IsAuthenticated(r Relay) bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	state := a.perURL[r.URL()]

	return state != nil && state.succeeded
}

func (a *Authenticator) markChallengeSent(relayURL string, key challengeKey) bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	state := a.perURL[relayURL]
	if state == nil {
		state = newAuthState()
		a.perURL[relayURL] = state
	}
	if _, sent := state.challengesSent[key]; sent {
		return false
	}
	state.challengesSent[key] = struct{}{}

	return true
}

func (a *Authenticator) unmarkChallengeSent(relayURL string, key challengeKey) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if state := a.perURL[relayURL]; state != nil {
		delete(state.challengesSent, key)
	}
}

func (a *Authenticator) watchResponse(relayURL, eventID string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if state := a.perURL[relayURL]; state != nil {
		state.responseWatcher[eventID] = AuthStatusAuthenticating
	}
}

func newAuthState() *authState {
	return &authState{
		challengesSent:  make(map[challengeKey]struct{}),
		responseWatcher: make(map[string]AuthStatus),
	}
}
