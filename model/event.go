// SPDX-License-Identifier: ice License 1.0

package model

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nbd-wtf/go-nostr"
)

type Event struct {
	nostr.Event
}

func (e *Event) IsReplaceable() bool {
	return IsReplaceableKind(e.Kind)
}

func (e *Event) IsEphemeral() bool {
	return IsEphemeralKind(e.Kind)
}

func (e *Event) IsAddressable() bool {
	return IsAddressableKind(e.Kind)
}

// DTag returns the value of the first "d" tag, or "" if there is none.
// Replaceable (non-addressable) kinds always address with an empty d-tag.
func (e *Event) DTag() string {
	if !e.IsAddressable() {
		return ""
	}
	if tag := e.GetTag("d"); tag != nil {
		return tag.Value()
	}

	return ""
}

// Address derives the latest-wins identity of the event,
// or nil if the kind is neither replaceable nor addressable.
func (e *Event) Address() *Address {
	if !e.IsReplaceable() && !e.IsAddressable() {
		return nil
	}

	return &Address{Kind: e.Kind, PubKeyHex: e.PubKey, DTag: e.DTag()}
}

func (e *Event) CheckID() bool {
	hash := sha256.Sum256(e.Serialize())

	return hex.EncodeToString(hash[:]) == e.ID
}

// IsNewerThan reports whether e supersedes other for the same Address.
// Equal timestamps keep the existing event, so the comparison is strict.
func (e *Event) IsNewerThan(other *Event) bool {
	return e.CreatedAt > other.CreatedAt
}

// SortsBefore orders events newest first, ties broken by id descending.
func (e *Event) SortsBefore(other *Event) bool {
	if e.CreatedAt != other.CreatedAt {
		return e.CreatedAt > other.CreatedAt
	}

	return e.ID > other.ID
}

func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}

func (e *Event) TagValues(tagName string) []string {
	var values []string
	for _, tag := range e.Tags {
		if tag.Key() == tagName && len(tag) > 1 {
			values = append(values, tag[1])
		}
	}

	return values
}
