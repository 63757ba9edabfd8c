// Package decoder maps wire messages served by hubs into the canonical
// record types of the indexer. All functions are pure; a false return means
// the message is not of the expected kind or is malformed, and should be
// skipped by the caller.
package decoder

import (
	"strings"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// networkEpoch is the published epoch of the upstream network; message
// timestamps are seconds since this instant.
var networkEpoch = time.UnixMilli(1609459200000).UTC()

// Timestamp converts a wire epoch-second timestamp to an absolute instant.
func Timestamp(seconds uint32) time.Time {
	return networkEpoch.Add(time.Duration(seconds) * time.Second)
}

// Hash canonicalizes a wire hash to lowercase hex with a 0x prefix. The
// second return is false when the input isn't valid hex.
func Hash(wire string) (string, bool) {
	b, err := hexutil.Decode(ensurePrefix(wire))
	if err != nil || len(b) == 0 {
		return "", false
	}
	return hexutil.Encode(b), true
}

func ensurePrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}

// ReactionType maps a wire reaction type to its canonical tag. False means
// the value is unknown.
func ReactionType(wire string) (castsync.ReactionType, bool) {
	switch wire {
	case "REACTION_TYPE_LIKE":
		return castsync.ReactionTypeLike, true
	case "REACTION_TYPE_RECAST":
		return castsync.ReactionTypeRecast, true
	}
	return "", false
}

// UserDataType maps a wire user data type to its canonical tag. Values not
// in the table map to UserDataTypeUnknown.
func UserDataType(wire string) castsync.UserDataType {
	switch wire {
	case "USER_DATA_TYPE_PFP":
		return castsync.UserDataTypePfp
	case "USER_DATA_TYPE_DISPLAY":
		return castsync.UserDataTypeDisplay
	case "USER_DATA_TYPE_BIO":
		return castsync.UserDataTypeBio
	case "USER_DATA_TYPE_USERNAME":
		return castsync.UserDataTypeUsername
	case "USER_DATA_TYPE_URL":
		return castsync.UserDataTypeURL
	case "USER_DATA_TYPE_LOCATION":
		return castsync.UserDataTypeLocation
	case "USER_DATA_TYPE_TWITTER":
		return castsync.UserDataTypeTwitter
	case "USER_DATA_TYPE_GITHUB":
		return castsync.UserDataTypeGithub
	case "USER_DATA_TYPE_BANNER":
		return castsync.UserDataTypeBanner
	case "USER_DATA_TYPE_USER_DATA_PRIMARY_ADDRESS_ETHEREUM":
		return castsync.UserDataTypeEthereumAddress
	case "USER_DATA_TYPE_USER_DATA_PRIMARY_ADDRESS_SOLANA":
		return castsync.UserDataTypeSolanaAddress
	}
	return castsync.UserDataTypeUnknown
}

// CastAdd decodes a CAST_ADD message into a Cast record.
func CastAdd(msg hub.Message) (castsync.Cast, bool) {
	if msg.Data == nil || msg.Data.Type != hub.MessageTypeCastAdd || msg.Data.CastAddBody == nil {
		return castsync.Cast{}, false
	}
	hash, ok := Hash(msg.Hash)
	if !ok {
		return castsync.Cast{}, false
	}

	body := msg.Data.CastAddBody
	cast := castsync.Cast{
		Hash:      hash,
		FID:       castsync.FID(msg.Data.FID),
		Text:      body.Text,
		Timestamp: Timestamp(msg.Data.Timestamp),
	}
	if body.ParentCastID != nil {
		parentHash, ok := Hash(body.ParentCastID.Hash)
		if !ok {
			return castsync.Cast{}, false
		}
		parentFID := castsync.FID(body.ParentCastID.FID)
		cast.ParentHash = &parentHash
		cast.ParentFID = &parentFID
	}
	if body.ParentURL != "" {
		parentURL := body.ParentURL
		cast.ParentURL = &parentURL
	}
	// A missing embeds array stays NULL; a present-but-empty one becomes "[]".
	if body.Embeds != nil {
		embeds := string(body.Embeds)
		cast.Embeds = &embeds
	}

	return cast, true
}

// ReactionAdd decodes a REACTION_ADD message into a Reaction record.
// Reactions targeting a URL instead of a cast are skipped.
func ReactionAdd(msg hub.Message) (castsync.Reaction, bool) {
	if msg.Data == nil || msg.Data.Type != hub.MessageTypeReactionAdd || msg.Data.ReactionBody == nil {
		return castsync.Reaction{}, false
	}
	body := msg.Data.ReactionBody
	if body.TargetCastID == nil {
		return castsync.Reaction{}, false
	}
	reactionType, ok := ReactionType(body.Type)
	if !ok {
		return castsync.Reaction{}, false
	}
	hash, ok := Hash(msg.Hash)
	if !ok {
		return castsync.Reaction{}, false
	}
	targetHash, ok := Hash(body.TargetCastID.Hash)
	if !ok {
		return castsync.Reaction{}, false
	}

	return castsync.Reaction{
		Hash:       hash,
		FID:        castsync.FID(msg.Data.FID),
		Type:       reactionType,
		TargetHash: targetHash,
		Timestamp:  Timestamp(msg.Data.Timestamp),
	}, true
}

// LinkAdd decodes a LINK_ADD message into a Link record.
func LinkAdd(msg hub.Message) (castsync.Link, bool) {
	if msg.Data == nil || msg.Data.Type != hub.MessageTypeLinkAdd || msg.Data.LinkBody == nil {
		return castsync.Link{}, false
	}
	body := msg.Data.LinkBody
	if body.TargetFID == 0 {
		return castsync.Link{}, false
	}
	hash, ok := Hash(msg.Hash)
	if !ok {
		return castsync.Link{}, false
	}

	return castsync.Link{
		Hash:      hash,
		FID:       castsync.FID(msg.Data.FID),
		TargetFID: castsync.FID(body.TargetFID),
		Type:      body.Type,
		Timestamp: Timestamp(msg.Data.Timestamp),
	}, true
}

// VerificationAdd decodes a VERIFICATION_ADD_ETH_ADDRESS message into a
// Verification record. The claimed address must have the shape of an
// ethereum address.
func VerificationAdd(msg hub.Message) (castsync.Verification, bool) {
	if msg.Data == nil ||
		msg.Data.Type != hub.MessageTypeVerificationAdd ||
		msg.Data.VerificationAddAddressBody == nil {
		return castsync.Verification{}, false
	}
	body := msg.Data.VerificationAddAddressBody
	if !common.IsHexAddress(body.Address) {
		return castsync.Verification{}, false
	}
	hash, ok := Hash(msg.Hash)
	if !ok {
		return castsync.Verification{}, false
	}

	return castsync.Verification{
		Hash:      hash,
		FID:       castsync.FID(msg.Data.FID),
		Address:   strings.ToLower(ensurePrefix(body.Address)),
		Protocol:  "ethereum",
		Timestamp: Timestamp(msg.Data.Timestamp),
	}, true
}

// UserDataAdd decodes a USER_DATA_ADD message into a UserDataEntry record.
func UserDataAdd(msg hub.Message) (castsync.UserDataEntry, bool) {
	if msg.Data == nil || msg.Data.Type != hub.MessageTypeUserDataAdd || msg.Data.UserDataBody == nil {
		return castsync.UserDataEntry{}, false
	}
	hash, ok := Hash(msg.Hash)
	if !ok {
		return castsync.UserDataEntry{}, false
	}

	return castsync.UserDataEntry{
		Hash:      hash,
		FID:       castsync.FID(msg.Data.FID),
		Type:      UserDataType(msg.Data.UserDataBody.Type),
		Value:     msg.Data.UserDataBody.Value,
		Timestamp: Timestamp(msg.Data.Timestamp),
	}, true
}

// OnChainEvent decodes a wire on-chain event into an OnChainEvent record.
func OnChainEvent(event hub.OnChainEvent) (castsync.OnChainEvent, bool) {
	txHash, ok := Hash(event.TransactionHash)
	if !ok {
		return castsync.OnChainEvent{}, false
	}
	blockHash, ok := Hash(event.BlockHash)
	if !ok {
		return castsync.OnChainEvent{}, false
	}

	record := castsync.OnChainEvent{
		Type:            event.Type,
		ChainID:         event.ChainID,
		BlockNumber:     event.BlockNumber,
		BlockHash:       blockHash,
		BlockTimestamp:  time.Unix(event.BlockTimestamp, 0).UTC(),
		TransactionHash: txHash,
		LogIndex:        event.LogIndex,
		FID:             castsync.FID(event.FID),
	}
	if event.SignerEventBody != nil {
		body, err := json.MarshalToString(event.SignerEventBody)
		if err != nil {
			return castsync.OnChainEvent{}, false
		}
		record.SignerEventBody = &body
	}
	if event.IDRegisterEventBody != nil {
		body, err := json.MarshalToString(event.IDRegisterEventBody)
		if err != nil {
			return castsync.OnChainEvent{}, false
		}
		record.IDRegisterEventBody = &body
	}

	return record, true
}
