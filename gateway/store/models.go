// Package store contains GORM-backed SQLite models used by the gateway.
//
// Database Structure (database file: snapshots.db):
//
//	<node_home>/
//	└── snapshots/
//	    └── snapshots.db
//	        └── pool_snapshots
package store

import (
	"gorm.io/gorm"
)

// PoolSnapshot holds the latest serialised pool of one chain.
type PoolSnapshot struct {
	gorm.Model
	ChainID string `gorm:"uniqueIndex;not null"` // Decimal chain id
	Data    []byte `gorm:"not null"`             // JSON-encoded pool
	Size    int    // Length of Data in bytes
}
