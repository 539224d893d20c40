// SPDX-License-Identifier: ice License 1.0

package model

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestParseRelayMessage(t *testing.T) {
	t.Parallel()

	t.Run("EOSE", func(t *testing.T) {
		env := ParseRelayMessage([]byte(`["EOSE","sub1"]`))
		require.NotNil(t, env)
		eose, ok := env.(*nostr.EOSEEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub1", string(*eose))
	})
	t.Run("OK", func(t *testing.T) {
		env := ParseRelayMessage([]byte(`["OK","abc",true,""]`))
		require.NotNil(t, env)
		okEnv, ok := env.(*nostr.OKEnvelope)
		require.True(t, ok)
		require.Equal(t, "abc", okEnv.EventID)
		require.True(t, okEnv.OK)
	})
	t.Run("AUTH", func(t *testing.T) {
		env := ParseRelayMessage([]byte(`["AUTH","challenge-string"]`))
		require.NotNil(t, env)
		auth, ok := env.(*nostr.AuthEnvelope)
		require.True(t, ok)
		require.NotNil(t, auth.Challenge)
		require.Equal(t, "challenge-string", *auth.Challenge)
	})
	t.Run("CLOSED", func(t *testing.T) {
		env := ParseRelayMessage([]byte(`["CLOSED","sub1","auth-required: do auth first"]`))
		require.NotNil(t, env)
		closed, ok := env.(*nostr.ClosedEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub1", closed.SubscriptionID)
	})
	t.Run("Garbage", func(t *testing.T) {
		require.Nil(t, ParseRelayMessage([]byte(`not json at all`)))
		require.Nil(t, ParseRelayMessage([]byte(`["WHATEVER","x"]`)))
	})
}

func TestReqEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	req := ReqEnvelope{
		SubscriptionID: "sub-42",
		Filters: Filters{
			{Filter: nostr.Filter{Kinds: []int{1}, Limit: 10}},
			{Filter: nostr.Filter{Authors: []string{"aa"}}},
		},
	}

	data, err := req.MarshalJSON()
	require.NoError(t, err)

	var decoded ReqEnvelope
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, req.SubscriptionID, decoded.SubscriptionID)
	require.Len(t, decoded.Filters, 2)
	require.Equal(t, []int{1}, decoded.Filters[0].Kinds)
	require.Equal(t, []string{"aa"}, decoded.Filters[1].Authors)
}
