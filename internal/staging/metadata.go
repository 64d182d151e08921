package staging

import (
	"time"

	"reconcile/internal/rules"
)

// Status tracks the lifecycle of a staging table. A table moves
// active → deleted on explicit drop, or active → expired → deleted through
// the TTL sweep. No table re-enters active once left.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// Metadata is the bookkeeping row recorded for every staging table. The
// table itself lives in the landing store; this row owns its lifecycle.
type Metadata struct {
	TableName    string
	ExecutionID  string
	RulesetID    string
	Side         rules.Side
	SourceVendor string
	SourceHost   string
	RowCount     int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Status       Status
}

// Info is the best-effort catalog view of a staging table returned to
// callers: exact row count, on-disk size, and index names. When catalog
// introspection fails the zero value is returned instead of an error.
type Info struct {
	TableName string   `json:"table_name"`
	RowCount  int64    `json:"row_count"`
	SizeMB    float64  `json:"size_mb"`
	Indexes   []string `json:"indexes"`
}
