// Package tests provides shared helpers for package tests.
package tests

import (
	"github.com/google/uuid"
)

// Sqlite3URL returns a DSN for a fresh in-memory database. The uuid name with
// shared cache lets multiple connections in a test see the same database
// without touching disk.
func Sqlite3URL() string {
	return "file::" + uuid.NewString() + ":?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000"
}
