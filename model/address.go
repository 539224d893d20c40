// SPDX-License-Identifier: ice License 1.0

package model

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Address is the canonical identity of replaceable and addressable events:
// at most one event per Address is current at any time.
type Address struct {
	Kind      Kind
	PubKeyHex HexKey
	DTag      string
}

const maxKindDigits = 5

func AssembleAddress(kind Kind, pubKeyHex HexKey, dTag string) string {
	return fmt.Sprintf("%d:%s:%s", kind, pubKeyHex, dTag)
}

func (a *Address) String() string {
	return AssembleAddress(a.Kind, a.PubKeyHex, a.DTag)
}

// ParseAddress decodes a "kind:pubkey:dtag" string or an naddr1-encoded
// identifier. Malformed inputs are logged and return nil, never an error:
// callers must null-check.
func ParseAddress(addr string) *Address {
	if strings.HasPrefix(addr, "naddr1") {
		return parseNAddr(addr)
	}

	parts := strings.SplitN(addr, ":", 3)
	if len(parts) < 2 {
		log.Printf("warn: address %q has no pubkey segment", addr)

		return nil
	}
	if len(parts[0]) == 0 || len(parts[0]) > maxKindDigits {
		log.Printf("warn: address %q has a malformed kind", addr)

		return nil
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		log.Printf("warn: address %q kind is not an integer: %v", addr, err)

		return nil
	}
	if !IsValidHex64(parts[1]) {
		log.Printf("warn: address %q pubkey is not 64 hex characters", addr)

		return nil
	}

	dTag := ""
	if len(parts) == 3 {
		dTag = parts[2]
	}

	return &Address{Kind: kind, PubKeyHex: parts[1], DTag: dTag}
}

func parseNAddr(addr string) *Address {
	prefix, value, err := nip19.Decode(addr)
	if err != nil || prefix != "naddr" {
		log.Printf("warn: failed to decode naddr %q: %v", addr, err)

		return nil
	}
	pointer, ok := value.(nostr.EntityPointer)
	if !ok {
		log.Printf("warn: naddr %q decoded to unexpected pointer type %T", addr, value)

		return nil
	}

	return &Address{Kind: pointer.Kind, PubKeyHex: pointer.PublicKey, DTag: pointer.Identifier}
}
