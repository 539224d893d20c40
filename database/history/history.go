// SPDX-License-Identifier: ice License 1.0

package history

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/permafrost/model"
)

type supersededEvent struct {
	ID        string
	Kind      int
	Pubkey    string
	DTag      string
	CreatedAt int64
	Tags      string
	Content   string
	Sig       string
}

// AcceptEvent archives a superseded event version. Already archived IDs are
// ignored, replays from multiple relays are expected.
func (db *Client) AcceptEvent(ctx context.Context, event *model.Event) error {
	if event == nil || event.ID == "" {
		return errors.New("attempted to archive an event without an id")
	}
	row, err := toRow(event)
	if err != nil {
		return err
	}
	const sql = `
INSERT INTO superseded_events (id, kind, pubkey, d_tag, created_at, tags, content, sig)
VALUES (:id, :kind, :pubkey, :d_tag, :created_at, :tags, :content, :sig)
ON CONFLICT (id) DO NOTHING`
	_, err = db.exec(ctx, sql, row)

	return errors.Wrapf(err, "failed to archive event %v", event.ID)
}

// SelectVersions returns the archived versions of one address, newest first.
// A non-positive limit returns everything.
func (db *Client) SelectVersions(ctx context.Context, addr model.Address, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	arg := map[string]any{
		"kind":   int(addr.Kind),
		"pubkey": string(addr.PubKeyHex),
		"d_tag":  addr.DTag,
		"lim":    limit,
	}
	const sql = `
SELECT id, kind, pubkey, d_tag, created_at, tags, content, sig
FROM superseded_events
WHERE kind = :kind AND pubkey = :pubkey AND d_tag = :d_tag
ORDER BY created_at DESC, id DESC
LIMIT :lim`
	var rows []supersededEvent
	if err := db.selectMany(ctx, sql, arg, &rows); err != nil {
		return nil, errors.Wrapf(err, "failed to select versions of %v", addr.String())
	}

	events := make([]*model.Event, 0, len(rows))
	for i := range rows {
		event, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// CountVersions reports how many versions of one address are archived.
func (db *Client) CountVersions(ctx context.Context, addr model.Address) (int64, error) {
	arg := map[string]any{
		"kind":   int(addr.Kind),
		"pubkey": string(addr.PubKeyHex),
		"d_tag":  addr.DTag,
	}
	const sql = `
SELECT count(*) AS cnt
FROM superseded_events
WHERE kind = :kind AND pubkey = :pubkey AND d_tag = :d_tag`
	var counts []int64
	if err := db.selectMany(ctx, sql, arg, &counts); err != nil {
		return 0, errors.Wrapf(err, "failed to count versions of %v", addr.String())
	}
	if len(counts) == 0 {
		return 0, nil
	}

	return counts[0], nil
}

// DeleteVersions drops the archived history of one address, for NIP-09 style
// deletion requests.
func (db *Client) DeleteVersions(ctx context.Context, addr model.Address) (int64, error) {
	arg := map[string]any{
		"kind":   int(addr.Kind),
		"pubkey": string(addr.PubKeyHex),
		"d_tag":  addr.DTag,
	}
	const sql = `
DELETE FROM superseded_events
WHERE kind = :kind AND pubkey = :pubkey AND d_tag = :d_tag`
	deleted, err := db.exec(ctx, sql, arg)

	return deleted, errors.Wrapf(err, "failed to delete versions of %v", addr.String())
}

func toRow(event *model.Event) (*supersededEvent, error) {
	tags, err := json.Marshal(event.Tags)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize tags of event %v", event.ID)
	}

	return &supersededEvent{
		ID:        event.ID,
		Kind:      event.Kind,
		Pubkey:    event.PubKey,
		DTag:      event.DTag(),
		CreatedAt: int64(event.CreatedAt),
		Tags:      string(tags),
		Content:   event.Content,
		Sig:       event.Sig,
	}, nil
}

func fromRow(row *supersededEvent) (*model.Event, error) {
	var tags model.Tags
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return nil, errors.Wrapf(err, "failed to deserialize tags of archived event %v", row.ID)
	}

	return &model.Event{Event: nostr.Event{
		ID:        row.ID,
		PubKey:    row.Pubkey,
		CreatedAt: model.Timestamp(row.CreatedAt),
		Kind:      row.Kind,
		Tags:      tags,
		Content:   row.Content,
		Sig:       row.Sig,
	}}, nil
}
