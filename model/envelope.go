// SPDX-License-Identifier: ice License 1.0

package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

type (
	EnvelopeType string

	Envelope interface {
		nostr.Envelope
	}

	ReqEnvelope struct {
		SubscriptionID string
		Filters
	}
)

const (
	EnvelopeTypeEvent  EnvelopeType = "EVENT"
	EnvelopeTypeReq    EnvelopeType = "REQ"
	EnvelopeTypeNotice EnvelopeType = "NOTICE"
	EnvelopeTypeEOSE   EnvelopeType = "EOSE"
	EnvelopeTypeOK     EnvelopeType = "OK"
	EnvelopeTypeAuth   EnvelopeType = "AUTH"
	EnvelopeTypeClosed EnvelopeType = "CLOSED"
	EnvelopeTypeClose  EnvelopeType = "CLOSE"
)

// ParseRelayMessage classifies and decodes a raw message received from a
// relay. Unknown or truncated messages yield nil: relays are untrusted and
// malformed traffic is dropped, not surfaced.
func ParseRelayMessage(message []byte) Envelope {
	firstComma := bytes.Index(message, []byte{','})
	if firstComma == -1 {
		return nil
	}
	label := message[0:firstComma]

	var v Envelope
	switch {
	case bytes.Contains(label, []byte(EnvelopeTypeEvent)):
		v = &nostr.EventEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeEOSE)):
		x := nostr.EOSEEnvelope("")
		v = &x
	case bytes.Contains(label, []byte(EnvelopeTypeNotice)):
		x := nostr.NoticeEnvelope("")
		v = &x
	case bytes.Contains(label, []byte(EnvelopeTypeOK)):
		v = &nostr.OKEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeAuth)):
		v = &nostr.AuthEnvelope{}
	case bytes.Contains(label, []byte(EnvelopeTypeClosed)):
		v = &nostr.ClosedEnvelope{}
	default:
		return nil
	}

	if err := v.UnmarshalJSON(message); err != nil {
		return nil
	}

	return v
}

func (*ReqEnvelope) Label() string {
	return string(EnvelopeTypeReq)
}

func (v *ReqEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode REQ envelope: missing filters")
	}
	v.SubscriptionID = arr[1].Str
	v.Filters = make(Filters, len(arr)-2)
	f := 0
	for i := 2; i < len(arr); i++ {
		if err := json.Unmarshal([]byte(arr[i].Raw), &v.Filters[f]); err != nil {
			return fmt.Errorf("%w -- on filter %d", err, f)
		}
		f++
	}

	return nil
}

func (v *ReqEnvelope) MarshalJSON() ([]byte, error) {
	data := []any{EnvelopeTypeReq, v.SubscriptionID}

	for i := range v.Filters {
		data = append(data, v.Filters[i])
	}

	return json.Marshal(data)
}

func (v *ReqEnvelope) String() string {
	data, _ := v.MarshalJSON()

	return string(data)
}
