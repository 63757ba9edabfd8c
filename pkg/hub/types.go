package hub

import (
	"encoding/json"
)

// Event types in the hub event stream.
const (
	EventTypeMergeMessage      = "HUB_EVENT_TYPE_MERGE_MESSAGE"
	EventTypePruneMessage      = "HUB_EVENT_TYPE_PRUNE_MESSAGE"
	EventTypeRevokeMessage     = "HUB_EVENT_TYPE_REVOKE_MESSAGE"
	EventTypeMergeOnChainEvent = "HUB_EVENT_TYPE_MERGE_ON_CHAIN_EVENT"
)

// Message types carried inside merge/prune/revoke events and by-fid endpoints.
const (
	MessageTypeCastAdd            = "MESSAGE_TYPE_CAST_ADD"
	MessageTypeCastRemove         = "MESSAGE_TYPE_CAST_REMOVE"
	MessageTypeReactionAdd        = "MESSAGE_TYPE_REACTION_ADD"
	MessageTypeReactionRemove     = "MESSAGE_TYPE_REACTION_REMOVE"
	MessageTypeLinkAdd            = "MESSAGE_TYPE_LINK_ADD"
	MessageTypeLinkRemove         = "MESSAGE_TYPE_LINK_REMOVE"
	MessageTypeVerificationAdd    = "MESSAGE_TYPE_VERIFICATION_ADD_ETH_ADDRESS"
	MessageTypeVerificationRemove = "MESSAGE_TYPE_VERIFICATION_REMOVE"
	MessageTypeUserDataAdd        = "MESSAGE_TYPE_USER_DATA_ADD"
)

// On-chain event types and signer event sub-types.
const (
	OnChainEventTypeSigner     = "EVENT_TYPE_SIGNER"
	OnChainEventTypeIDRegister = "EVENT_TYPE_ID_REGISTER"

	SignerEventTypeAdd    = "SIGNER_EVENT_TYPE_ADD"
	SignerEventTypeRemove = "SIGNER_EVENT_TYPE_REMOVE"
)

// Info is the hub information response.
type Info struct {
	Version   string  `json:"version"`
	IsSyncing bool    `json:"isSyncing"`
	Nickname  string  `json:"nickname"`
	RootHash  string  `json:"rootHash"`
	DBStats   DBStats `json:"dbStats"`
}

// DBStats has the hub database counters.
type DBStats struct {
	NumMessages    uint64 `json:"numMessages"`
	NumFIDEvents   uint64 `json:"numFidEvents"`
	NumFnameEvents uint64 `json:"numFnameEvents"`
}

// Event is one entry of the hub event stream. Exactly one of the body fields
// is present, matching Type.
type Event struct {
	ID                    uint64                 `json:"id"`
	Type                  string                 `json:"type"`
	MergeMessageBody      *MergeMessageBody      `json:"mergeMessageBody,omitempty"`
	PruneMessageBody      *PruneMessageBody      `json:"pruneMessageBody,omitempty"`
	RevokeMessageBody     *RevokeMessageBody     `json:"revokeMessageBody,omitempty"`
	MergeOnChainEventBody *MergeOnChainEventBody `json:"mergeOnChainEventBody,omitempty"`
}

// MergeMessageBody carries the merged message of a merge event.
type MergeMessageBody struct {
	Message         *Message  `json:"message"`
	DeletedMessages []Message `json:"deletedMessages,omitempty"`
}

// PruneMessageBody carries the pruned message of a prune event.
type PruneMessageBody struct {
	Message *Message `json:"message"`
}

// RevokeMessageBody carries the revoked message of a revoke event.
type RevokeMessageBody struct {
	Message *Message `json:"message"`
}

// MergeOnChainEventBody carries the on-chain event of a merge event.
type MergeOnChainEventBody struct {
	OnChainEvent *OnChainEvent `json:"onChainEvent"`
}

// Message is a signed message as served by hubs.
type Message struct {
	Data            *MessageData `json:"data"`
	Hash            string       `json:"hash"`
	HashScheme      string       `json:"hashScheme,omitempty"`
	Signature       string       `json:"signature,omitempty"`
	SignatureScheme string       `json:"signatureScheme,omitempty"`
	Signer          string       `json:"signer,omitempty"`
}

// MessageData is the body of a message. At most one of the *Body fields is
// present, matching Type. Timestamp is in seconds since the network epoch.
type MessageData struct {
	Type                       string                      `json:"type"`
	FID                        uint64                      `json:"fid"`
	Timestamp                  uint32                      `json:"timestamp"`
	Network                    string                      `json:"network,omitempty"`
	CastAddBody                *CastAddBody                `json:"castAddBody,omitempty"`
	CastRemoveBody             *CastRemoveBody             `json:"castRemoveBody,omitempty"`
	ReactionBody               *ReactionBody               `json:"reactionBody,omitempty"`
	LinkBody                   *LinkBody                   `json:"linkBody,omitempty"`
	VerificationAddAddressBody *VerificationAddAddressBody `json:"verificationAddAddressBody,omitempty"`
	VerificationRemoveBody     *VerificationRemoveBody     `json:"verificationRemoveBody,omitempty"`
	UserDataBody               *UserDataBody               `json:"userDataBody,omitempty"`
}

// CastID identifies a cast by author and hash.
type CastID struct {
	FID  uint64 `json:"fid"`
	Hash string `json:"hash"`
}

// CastAddBody is the body of a CAST_ADD message. Embeds is kept raw so a
// missing array can be told apart from an empty one.
type CastAddBody struct {
	Text              string          `json:"text"`
	Embeds            json.RawMessage `json:"embeds,omitempty"`
	Mentions          []uint64        `json:"mentions,omitempty"`
	MentionsPositions []uint32        `json:"mentionsPositions,omitempty"`
	ParentCastID      *CastID         `json:"parentCastId,omitempty"`
	ParentURL         string          `json:"parentUrl,omitempty"`
}

// CastRemoveBody is the body of a CAST_REMOVE message.
type CastRemoveBody struct {
	TargetHash string `json:"targetHash"`
}

// ReactionBody is the body of a REACTION_ADD/REMOVE message.
type ReactionBody struct {
	Type         string  `json:"type"`
	TargetCastID *CastID `json:"targetCastId,omitempty"`
	TargetURL    string  `json:"targetUrl,omitempty"`
}

// LinkBody is the body of a LINK_ADD/REMOVE message.
type LinkBody struct {
	Type             string `json:"type"`
	TargetFID        uint64 `json:"targetFid,omitempty"`
	DisplayTimestamp uint32 `json:"displayTimestamp,omitempty"`
}

// VerificationAddAddressBody is the body of a VERIFICATION_ADD_ETH_ADDRESS message.
type VerificationAddAddressBody struct {
	Address        string `json:"address"`
	ClaimSignature string `json:"claimSignature,omitempty"`
	BlockHash      string `json:"blockHash,omitempty"`
	Protocol       string `json:"protocol,omitempty"`
}

// VerificationRemoveBody is the body of a VERIFICATION_REMOVE message.
type VerificationRemoveBody struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol,omitempty"`
}

// UserDataBody is the body of a USER_DATA_ADD message.
type UserDataBody struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// OnChainEvent is an on-chain registry event as served by hubs.
// BlockTimestamp is in unix seconds.
type OnChainEvent struct {
	Type                string               `json:"type"`
	ChainID             int64                `json:"chainId"`
	BlockNumber         int64                `json:"blockNumber"`
	BlockHash           string               `json:"blockHash"`
	BlockTimestamp      int64                `json:"blockTimestamp"`
	TransactionHash     string               `json:"transactionHash"`
	LogIndex            int64                `json:"logIndex"`
	TxIndex             int64                `json:"txIndex,omitempty"`
	FID                 uint64               `json:"fid"`
	SignerEventBody     *SignerEventBody     `json:"signerEventBody,omitempty"`
	IDRegisterEventBody *IDRegisterEventBody `json:"idRegisterEventBody,omitempty"`
}

// SignerEventBody is the body of a signer on-chain event. RequestFID is
// the fid of the client application that requested the signer, decoded
// from the signer request metadata.
type SignerEventBody struct {
	Key          string `json:"key"`
	KeyType      uint32 `json:"keyType"`
	EventType    string `json:"eventType"`
	Metadata     string `json:"metadata,omitempty"`
	MetadataType uint32 `json:"metadataType,omitempty"`
	RequestFID   uint64 `json:"requestFid,omitempty"`
}

// IDRegisterEventBody is the body of an id-register on-chain event.
type IDRegisterEventBody struct {
	To              string `json:"to"`
	EventType       string `json:"eventType"`
	From            string `json:"from,omitempty"`
	RecoveryAddress string `json:"recoveryAddress,omitempty"`
}

// IsSignerAdd reports whether the on-chain event is a signer addition.
func (e *OnChainEvent) IsSignerAdd() bool {
	return e.Type == OnChainEventTypeSigner &&
		e.SignerEventBody != nil &&
		e.SignerEventBody.EventType == SignerEventTypeAdd
}

// SignerRequestFID returns the fid of the client that requested the
// signer, or zero when the event carries no signer body.
func (e *OnChainEvent) SignerRequestFID() uint64 {
	if e.SignerEventBody == nil {
		return 0
	}
	return e.SignerEventBody.RequestFID
}

// EventsPage is a page of the hub event stream.
type EventsPage struct {
	NextPageEventID uint64  `json:"nextPageEventId"`
	Events          []Event `json:"events"`
}

// MessagesPage is a page of messages of a by-fid endpoint.
type MessagesPage struct {
	Messages      []Message `json:"messages"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// OnChainEventsPage is a page of on-chain events of a by-fid endpoint.
type OnChainEventsPage struct {
	Events        []OnChainEvent `json:"events"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}
