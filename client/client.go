// SPDX-License-Identifier: ice License 1.0

package client

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/permafrost/cache"
	"github.com/ice-blockchain/permafrost/database/history"
	"github.com/ice-blockchain/permafrost/model"
	"github.com/ice-blockchain/permafrost/relay"
	"github.com/ice-blockchain/permafrost/subscription"
)

type (
	Config struct {
		Relays           []string      `yaml:"relays"`
		DatabasePath     string        `yaml:"databasePath"`
		DebounceInterval time.Duration `yaml:"debounceInterval"`
	}

	// Client owns the whole ingestion pipeline: relay connections feed raw
	// messages in, events land in the cache with superseded versions
	// archived, EOSE markers advance cursors, and AUTH challenges are
	// answered. It implements both halves of the relay contract, Listener
	// for inbound traffic and the filter-renewal callback for the
	// authenticator.
	Client struct {
		events        *cache.EventCache
		eoses         *relay.EOSEAccount
		pool          *subscription.Pool
		finder        *subscription.EventFinder
		authenticator *relay.Authenticator
		archive       *history.Client
		stats         *relay.Stats
		connections   map[string]*relay.Connection
	}
)

const authRequiredPrefix = "auth-required:"

func New(cfg *Config, signers func() []relay.Signer) *Client {
	c := &Client{
		events:      cache.NewEventCache(),
		eoses:       relay.NewEOSEAccount(),
		pool:        subscription.NewPool(),
		stats:       relay.NewStats(),
		connections: make(map[string]*relay.Connection),
	}
	c.authenticator = relay.NewAuthenticator(c, signers)
	if cfg.DatabasePath != "" {
		c.archive = history.Open(cfg.DatabasePath)
		c.events.AddListener(c.archiveVersion)
	}
	relayURLs := func() []string {
		urls := make([]string, 0, len(cfg.Relays))
		urls = append(urls, cfg.Relays...)

		return urls
	}
	c.finder = subscription.NewEventFinder(c.pool, c.eoses, c.events, relayURLs, cfg.DebounceInterval)
	for _, url := range cfg.Relays {
		conn := relay.NewConnection(url, c, c.stats)
		c.connections[url] = conn
		c.pool.AddRelay(conn)
	}

	return c
}

// Connect dials every configured relay. Individual failures are logged, the
// remaining relays still come up, and an error is returned only when no
// relay connected at all.
func (c *Client) Connect(ctx context.Context) error {
	connected := 0
	for url, conn := range c.connections {
		if err := conn.Connect(ctx); err != nil {
			log.Printf("WARN: %v", errors.Wrapf(err, "failed to connect to relay %v", url))

			continue
		}
		connected++
	}
	if connected == 0 && len(c.connections) > 0 {
		return errors.New("failed to connect to every configured relay")
	}

	return nil
}

func (c *Client) Close() error {
	for _, conn := range c.connections {
		conn.Disconnect()
	}
	if c.archive != nil {
		return errors.Wrap(c.archive.Close(), "failed to close the history database")
	}

	return nil
}

func (c *Client) Events() *cache.EventCache {
	return c.events
}

func (c *Client) Finder() *subscription.EventFinder {
	return c.finder
}

func (c *Client) Stats() *relay.Stats {
	return c.stats
}

func (c *Client) OnConnecting(r relay.Relay) {
	c.authenticator.OnConnect(r)
}

func (c *Client) OnDisconnected(r relay.Relay) {
	c.authenticator.OnDisconnect(r)
}

func (c *Client) OnIncomingMessage(r relay.Relay, raw []byte, parsed model.Envelope) {
	if parsed == nil {
		log.Printf("WARN: dropping unparsable message from relay %v: %v", r.URL(), string(raw))

		return
	}
	switch envelope := parsed.(type) {
	case *nostr.EventEnvelope:
		c.stats.EventReceived(r.URL())
		event := &model.Event{Event: envelope.Event}
		if _, err := c.events.Put(event); err != nil {
			log.Printf("ERROR:%v", errors.Wrapf(err, "failed to ingest event %v from relay %v", event.ID, r.URL()))
		}
	case *nostr.EOSEEnvelope:
		c.stats.EOSEReceived(r.URL())
		if string(*envelope) == c.finder.SubscriptionID() {
			c.finder.OnEOSE(r.URL(), nostr.Now())
			c.finder.InvalidateFilters()
		}
	case *nostr.AuthEnvelope:
		c.stats.AuthChallengeReceived(r.URL())
		if envelope.Challenge != nil {
			if err := c.authenticator.OnAuthChallenge(context.Background(), r, *envelope.Challenge); err != nil {
				log.Printf("ERROR:%v", errors.Wrapf(err, "failed to answer auth challenge from relay %v", r.URL()))
			}
		}
	case *nostr.OKEnvelope:
		c.authenticator.CheckAuthResults(r, envelope.EventID, envelope.OK)
	case *nostr.ClosedEnvelope:
		if strings.HasPrefix(envelope.Reason, authRequiredPrefix) {
			log.Printf("WARN: relay %v requires auth for subscription %v", r.URL(), envelope.SubscriptionID)
		}
	case *nostr.NoticeEnvelope:
		log.Printf("WARN: notice from relay %v: %v", r.URL(), string(*envelope))
	}
}

// RenewFilters resends every active subscription to a relay that just
// authenticated us, its pre-auth responses may have come from a restricted
// view.
func (c *Client) RenewFilters(r relay.Relay) {
	c.pool.RenewFilters(r)
}

// archiveVersion runs on every accepted event. Each version of an
// addressable or replaceable event is persisted, so edits remain available
// for backfill even after the in-memory index moved on to a newer one.
func (c *Client) archiveVersion(event *model.Event) error {
	if event == nil || event.Address() == nil {
		return nil
	}

	return errors.Wrapf(c.archive.AcceptEvent(context.Background(), event),
		"failed to archive version %v of %v", event.ID, event.Address().String())
}
