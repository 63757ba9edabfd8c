package db

import (
	"database/sql"
	"time"
)

type Target struct {
	Fid          int64
	IsRoot       bool
	AddedAt      time.Time
	LastSyncedAt sql.NullTime
}

type ClientTarget struct {
	Fid     int64
	AddedAt time.Time
}

type SyncState struct {
	Name        string
	LastEventID int64
	UpdatedAt   time.Time
}

type UserView struct {
	Fid             int64
	Pfp             sql.NullString
	Display         sql.NullString
	Bio             sql.NullString
	Username        sql.NullString
	Url             sql.NullString
	Location        sql.NullString
	Twitter         sql.NullString
	Github          sql.NullString
	Banner          sql.NullString
	EthereumAddress sql.NullString
	SolanaAddress   sql.NullString
}
