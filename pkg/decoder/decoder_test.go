package decoder

import (
	"testing"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/stretchr/testify/require"
)

func TestTimestamp(t *testing.T) {
	t.Parallel()

	// 839414s past the network epoch (2021-01-01T00:00:00Z).
	ts := Timestamp(839414)
	require.Equal(t, time.Date(2021, 1, 10, 17, 10, 14, 0, time.UTC), ts)

	require.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), Timestamp(0))
}

func TestHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wire string
		want string
		ok   bool
	}{
		{wire: "0xA1", want: "0xa1", ok: true},
		{wire: "0xdeadBEEF", want: "0xdeadbeef", ok: true},
		{wire: "A1B2", want: "0xa1b2", ok: true},
		{wire: "0xzz", ok: false},
		{wire: "", ok: false},
		{wire: "0x", ok: false},
	}
	for _, tc := range tests {
		got, ok := Hash(tc.wire)
		require.Equal(t, tc.ok, ok, tc.wire)
		require.Equal(t, tc.want, got, tc.wire)
	}
}

func TestCastAdd(t *testing.T) {
	t.Parallel()

	t.Run("basic", func(t *testing.T) {
		t.Parallel()
		cast, ok := CastAdd(hub.Message{
			Hash: "0xA1",
			Data: &hub.MessageData{
				Type:        hub.MessageTypeCastAdd,
				FID:         1,
				Timestamp:   839414,
				CastAddBody: &hub.CastAddBody{Text: "hi"},
			},
		})
		require.True(t, ok)
		require.Equal(t, "0xa1", cast.Hash)
		require.Equal(t, castsync.FID(1), cast.FID)
		require.Equal(t, "hi", cast.Text)
		require.Equal(t, time.Date(2021, 1, 10, 17, 10, 14, 0, time.UTC), cast.Timestamp)
		require.Nil(t, cast.Embeds)
		require.Nil(t, cast.ParentHash)
	})

	t.Run("with parent and embeds", func(t *testing.T) {
		t.Parallel()
		cast, ok := CastAdd(hub.Message{
			Hash: "0xB2",
			Data: &hub.MessageData{
				Type:      hub.MessageTypeCastAdd,
				FID:       2,
				Timestamp: 1,
				CastAddBody: &hub.CastAddBody{
					Text:         "reply",
					Embeds:       []byte(`[{"url":"https://example.com"}]`),
					ParentCastID: &hub.CastID{FID: 1, Hash: "0xA1"},
				},
			},
		})
		require.True(t, ok)
		require.NotNil(t, cast.ParentHash)
		require.Equal(t, "0xa1", *cast.ParentHash)
		require.Equal(t, castsync.FID(1), *cast.ParentFID)
		require.NotNil(t, cast.Embeds)
		require.Equal(t, `[{"url":"https://example.com"}]`, *cast.Embeds)
	})

	t.Run("empty embeds array", func(t *testing.T) {
		t.Parallel()
		cast, ok := CastAdd(hub.Message{
			Hash: "0xC3",
			Data: &hub.MessageData{
				Type:        hub.MessageTypeCastAdd,
				FID:         1,
				CastAddBody: &hub.CastAddBody{Text: "x", Embeds: []byte(`[]`)},
			},
		})
		require.True(t, ok)
		require.NotNil(t, cast.Embeds)
		require.Equal(t, "[]", *cast.Embeds)
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()
		_, ok := CastAdd(hub.Message{
			Hash: "0xA1",
			Data: &hub.MessageData{Type: hub.MessageTypeReactionAdd},
		})
		require.False(t, ok)
	})
}

func TestReactionAdd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wireType string
		want     castsync.ReactionType
		wantOK   bool
	}{
		{name: "like", wireType: "REACTION_TYPE_LIKE", want: castsync.ReactionTypeLike, wantOK: true},
		{name: "recast", wireType: "REACTION_TYPE_RECAST", want: castsync.ReactionTypeRecast, wantOK: true},
		{name: "unknown", wireType: "REACTION_TYPE_SOMETHING_ELSE", wantOK: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reaction, ok := ReactionAdd(hub.Message{
				Hash: "0xD4",
				Data: &hub.MessageData{
					Type:      hub.MessageTypeReactionAdd,
					FID:       3,
					Timestamp: 10,
					ReactionBody: &hub.ReactionBody{
						Type:         tc.wireType,
						TargetCastID: &hub.CastID{FID: 1, Hash: "0xA1"},
					},
				},
			})
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			require.Equal(t, tc.want, reaction.Type)
			require.Equal(t, "0xd4", reaction.Hash)
			require.Equal(t, "0xa1", reaction.TargetHash)
		})
	}

	t.Run("url target skipped", func(t *testing.T) {
		t.Parallel()
		_, ok := ReactionAdd(hub.Message{
			Hash: "0xD4",
			Data: &hub.MessageData{
				Type:         hub.MessageTypeReactionAdd,
				ReactionBody: &hub.ReactionBody{Type: "REACTION_TYPE_LIKE", TargetURL: "https://x"},
			},
		})
		require.False(t, ok)
	})
}

func TestLinkAdd(t *testing.T) {
	t.Parallel()

	link, ok := LinkAdd(hub.Message{
		Hash: "0xE5",
		Data: &hub.MessageData{
			Type:      hub.MessageTypeLinkAdd,
			FID:       1,
			Timestamp: 20,
			LinkBody:  &hub.LinkBody{Type: "follow", TargetFID: 2},
		},
	})
	require.True(t, ok)
	require.Equal(t, "0xe5", link.Hash)
	require.Equal(t, castsync.FID(1), link.FID)
	require.Equal(t, castsync.FID(2), link.TargetFID)
	require.Equal(t, castsync.LinkTypeFollow, link.Type)
}

func TestVerificationAdd(t *testing.T) {
	t.Parallel()

	t.Run("valid address", func(t *testing.T) {
		t.Parallel()
		verification, ok := VerificationAdd(hub.Message{
			Hash: "0xF6",
			Data: &hub.MessageData{
				Type: hub.MessageTypeVerificationAdd,
				FID:  1,
				VerificationAddAddressBody: &hub.VerificationAddAddressBody{
					Address: "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
				},
			},
		})
		require.True(t, ok)
		require.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", verification.Address)
		require.Equal(t, "ethereum", verification.Protocol)
	})

	t.Run("bad address", func(t *testing.T) {
		t.Parallel()
		_, ok := VerificationAdd(hub.Message{
			Hash: "0xF6",
			Data: &hub.MessageData{
				Type:                       hub.MessageTypeVerificationAdd,
				VerificationAddAddressBody: &hub.VerificationAddAddressBody{Address: "not-an-address"},
			},
		})
		require.False(t, ok)
	})
}

func TestUserDataAdd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wireType string
		want     castsync.UserDataType
	}{
		{wireType: "USER_DATA_TYPE_PFP", want: castsync.UserDataTypePfp},
		{wireType: "USER_DATA_TYPE_DISPLAY", want: castsync.UserDataTypeDisplay},
		{wireType: "USER_DATA_TYPE_BIO", want: castsync.UserDataTypeBio},
		{wireType: "USER_DATA_TYPE_USERNAME", want: castsync.UserDataTypeUsername},
		{wireType: "USER_DATA_TYPE_URL", want: castsync.UserDataTypeURL},
		{wireType: "USER_DATA_TYPE_LOCATION", want: castsync.UserDataTypeLocation},
		{wireType: "USER_DATA_TYPE_TWITTER", want: castsync.UserDataTypeTwitter},
		{wireType: "USER_DATA_TYPE_GITHUB", want: castsync.UserDataTypeGithub},
		{wireType: "USER_DATA_TYPE_BANNER", want: castsync.UserDataTypeBanner},
		{wireType: "USER_DATA_TYPE_USER_DATA_PRIMARY_ADDRESS_ETHEREUM", want: castsync.UserDataTypeEthereumAddress},
		{wireType: "USER_DATA_TYPE_USER_DATA_PRIMARY_ADDRESS_SOLANA", want: castsync.UserDataTypeSolanaAddress},
		{wireType: "USER_DATA_TYPE_WHATEVER_COMES_NEXT", want: castsync.UserDataTypeUnknown},
	}
	for _, tc := range tests {
		entry, ok := UserDataAdd(hub.Message{
			Hash: "0x07",
			Data: &hub.MessageData{
				Type:         hub.MessageTypeUserDataAdd,
				FID:          1,
				UserDataBody: &hub.UserDataBody{Type: tc.wireType, Value: "v"},
			},
		})
		require.True(t, ok, tc.wireType)
		require.Equal(t, tc.want, entry.Type, tc.wireType)
		require.Equal(t, "v", entry.Value)
	}
}

func TestOnChainEvent(t *testing.T) {
	t.Parallel()

	event, ok := OnChainEvent(hub.OnChainEvent{
		Type:            hub.OnChainEventTypeSigner,
		ChainID:         10,
		BlockNumber:     100,
		BlockHash:       "0xAB",
		BlockTimestamp:  1700000000,
		TransactionHash: "0xCD",
		LogIndex:        3,
		FID:             6,
		SignerEventBody: &hub.SignerEventBody{Key: "0x01", EventType: hub.SignerEventTypeAdd},
	})
	require.True(t, ok)
	require.Equal(t, "0xcd", event.TransactionHash)
	require.Equal(t, "0xab", event.BlockHash)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), event.BlockTimestamp)
	require.NotNil(t, event.SignerEventBody)
	require.Contains(t, *event.SignerEventBody, `"eventType":"SIGNER_EVENT_TYPE_ADD"`)
	require.Nil(t, event.IDRegisterEventBody)
}
