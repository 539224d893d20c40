// SPDX-License-Identifier: ice License 1.0

package model

import (
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	HexKey    = string
)

var (
	ErrSignerNotFound         = errors.New("signer not found")
	ErrSignerManuallyRejected = errors.New("request manually rejected by the signer")
	ErrSignerTimeout          = errors.New("signer timed out")
	ErrUnauthorizedDecryption = errors.New("unauthorized decryption")
)

const (
	kindReplaceableStart = 10_000
	kindEphemeralStart   = 20_000
	kindAddressableStart = 30_000
	kindAddressableEnd   = 40_000
)

func IsReplaceableKind(kind Kind) bool {
	return kind == nostr.KindProfileMetadata ||
		kind == nostr.KindFollowList ||
		(kind >= kindReplaceableStart && kind < kindEphemeralStart)
}

func IsEphemeralKind(kind Kind) bool {
	return kind >= kindEphemeralStart && kind < kindAddressableStart
}

func IsAddressableKind(kind Kind) bool {
	return kind >= kindAddressableStart && kind < kindAddressableEnd
}

func IsValidHex64(key string) bool {
	if len(key) != 64 {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}

	return true
}
