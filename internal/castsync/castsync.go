package castsync

import (
	"time"
)

// FID is an account identifier on the upstream network.
type FID uint64

// ReactionType is the canonical tag of a reaction.
type ReactionType string

// Reaction types.
const (
	ReactionTypeLike   ReactionType = "like"
	ReactionTypeRecast ReactionType = "recast"
)

// LinkTypeFollow is the only link type the indexer materializes.
const LinkTypeFollow = "follow"

// UserDataType is the canonical tag of a profile attribute.
type UserDataType string

// User data types.
const (
	UserDataTypePfp             UserDataType = "pfp"
	UserDataTypeDisplay         UserDataType = "display"
	UserDataTypeBio             UserDataType = "bio"
	UserDataTypeUsername        UserDataType = "username"
	UserDataTypeURL             UserDataType = "url"
	UserDataTypeLocation        UserDataType = "location"
	UserDataTypeTwitter         UserDataType = "twitter"
	UserDataTypeGithub          UserDataType = "github"
	UserDataTypeBanner          UserDataType = "banner"
	UserDataTypeEthereumAddress UserDataType = "ethereum_address"
	UserDataTypeSolanaAddress   UserDataType = "solana_address"
	UserDataTypeUnknown         UserDataType = "unknown"
)

// Target is a tracked account.
type Target struct {
	FID          FID        `json:"fid"`
	IsRoot       bool       `json:"is_root"`
	AddedAt      time.Time  `json:"added_at"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// ClientTarget is an account whose on-chain signer events signal new-user signups.
type ClientTarget struct {
	FID     FID       `json:"fid"`
	AddedAt time.Time `json:"added_at"`
}

// Cast is a post. Immutable once written; mutation happens only by delete.
type Cast struct {
	Hash       string  `json:"hash"`
	FID        FID     `json:"fid"`
	Text       string  `json:"text"`
	ParentHash *string `json:"parent_hash"`
	ParentFID  *FID    `json:"parent_fid"`
	ParentURL  *string `json:"parent_url"`
	// Embeds is a JSON array string. Nil means the wire message carried no embeds.
	Embeds    *string   `json:"embeds"`
	Timestamp time.Time `json:"timestamp"`
}

// Reaction is a like or recast of a cast.
type Reaction struct {
	Hash       string       `json:"hash"`
	FID        FID          `json:"fid"`
	Type       ReactionType `json:"type"`
	TargetHash string       `json:"target_hash"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Link is a follow edge between two accounts.
type Link struct {
	Hash      string    `json:"hash"`
	FID       FID       `json:"fid"`
	TargetFID FID       `json:"target_fid"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Verification is an address ownership claim.
type Verification struct {
	Hash      string    `json:"hash"`
	FID       FID       `json:"fid"`
	Address   string    `json:"address"`
	Protocol  string    `json:"protocol"`
	Timestamp time.Time `json:"timestamp"`
}

// UserDataEntry is a single profile attribute write. The latest timestamp
// wins per (fid, type).
type UserDataEntry struct {
	Hash      string       `json:"hash"`
	FID       FID          `json:"fid"`
	Type      UserDataType `json:"type"`
	Value     string       `json:"value"`
	Timestamp time.Time    `json:"timestamp"`
}

// OnChainEvent is an on-chain registry event for an account. Unique by
// (transaction_hash, log_index).
type OnChainEvent struct {
	Type                string    `json:"type"`
	ChainID             int64     `json:"chain_id"`
	BlockNumber         int64     `json:"block_number"`
	BlockHash           string    `json:"block_hash"`
	BlockTimestamp      time.Time `json:"block_timestamp"`
	TransactionHash     string    `json:"transaction_hash"`
	LogIndex            int64     `json:"log_index"`
	FID                 FID       `json:"fid"`
	SignerEventBody     *string   `json:"signer_event_body"`
	IDRegisterEventBody *string   `json:"id_register_event_body"`
}

// UserView is the per-fid projection of the latest user data entry of each type.
type UserView struct {
	FID             FID     `json:"fid"`
	Pfp             *string `json:"pfp"`
	Display         *string `json:"display"`
	Bio             *string `json:"bio"`
	Username        *string `json:"username"`
	URL             *string `json:"url"`
	Location        *string `json:"location"`
	Twitter         *string `json:"twitter"`
	Github          *string `json:"github"`
	Banner          *string `json:"banner"`
	EthereumAddress *string `json:"ethereum_address"`
	SolanaAddress   *string `json:"solana_address"`
}

// SyncStateLastEventID is the name of the sync state row holding the realtime cursor.
const SyncStateLastEventID = "last_event_id"

// SyncStatus is the backfill status of a target.
type SyncStatus string

// Sync statuses reported by the target listing.
const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusWaiting  SyncStatus = "waiting"
	SyncStatusUnsynced SyncStatus = "unsynced"
)
