// Package source connects to external source/target databases for
// extraction. Each supported vendor contributes a Dialect describing how to
// build a DSN, quote identifiers, and cap row counts in its SQL flavor.
//
// Vendors register themselves with the package-level registry from their
// init functions (see the per-vendor subpackages and source/all). The rest
// of the pipeline depends only on this package and database/sql.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"reconcile/internal/reconerr"
)

// ConnInfo describes a connection to an external database. It is supplied
// per call and never persisted by the pipeline.
type ConnInfo struct {
	Vendor   string `json:"db_type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	// ServiceName is a vendor-specific discriminator, e.g. an Oracle
	// service name for multi-tenant instances.
	ServiceName string `json:"service_name,omitempty"`
}

// Dialect captures the vendor-specific pieces of SQL and connectivity the
// extractor needs.
type Dialect interface {
	// ID is the vendor tag matched against ConnInfo.Vendor.
	ID() string
	// DriverName is the database/sql driver this dialect connects through.
	DriverName() string
	// DSN renders a driver connection string from ConnInfo.
	DSN(ci ConnInfo) (string, error)
	// QuoteIdent quotes a single identifier segment.
	QuoteIdent(ident string) string
	// SelectAll renders a full-table SELECT, row-capped when limit > 0.
	SelectAll(schema, table string, limit int) string
}

var (
	mu       sync.RWMutex
	dialects = map[string]Dialect{}
)

// Register adds (or replaces) a dialect. Called from vendor init functions.
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[d.ID()] = d
}

// Lookup returns the dialect for a vendor tag.
func Lookup(vendor string) (Dialect, error) {
	mu.RLock()
	d, ok := dialects[vendor]
	mu.RUnlock()
	if !ok {
		return nil, reconerr.Newf(reconerr.CodeConfiguration,
			"unsupported vendor %q (registered: %v)", vendor, Vendors())
	}
	return d, nil
}

// Vendors returns the registered vendor tags, sorted.
func Vendors() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Conn bundles an open source connection with its dialect.
type Conn struct {
	DB      *sql.DB
	Dialect Dialect
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.DB.Close() }

// Open resolves the dialect for ci.Vendor, verifies the driver is linked
// into the binary, and opens plus pings the connection.
//
// A missing driver fails fast before any database is touched; an
// unreachable database surfaces as a connectivity error.
func Open(ctx context.Context, ci ConnInfo) (*Conn, error) {
	d, err := Lookup(ci.Vendor)
	if err != nil {
		return nil, err
	}
	if !driverRegistered(d.DriverName()) {
		return nil, reconerr.Newf(reconerr.CodeConfiguration,
			"driver %q for vendor %q is not linked into this binary", d.DriverName(), ci.Vendor)
	}
	dsn, err := d.DSN(ci)
	if err != nil {
		return nil, reconerr.New(reconerr.CodeConfiguration, err)
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, reconerr.Newf(reconerr.CodeConnectivity, "open %s: %w", ci.Vendor, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, reconerr.Newf(reconerr.CodeConnectivity, "ping %s at %s:%d: %w", ci.Vendor, ci.Host, ci.Port, err)
	}
	return &Conn{DB: db, Dialect: d}, nil
}

func driverRegistered(name string) bool {
	for _, d := range sql.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

// QualifiedTable renders schema.table with dialect quoting, omitting the
// schema part when empty.
func QualifiedTable(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return fmt.Sprintf("%s.%s", d.QuoteIdent(schema), d.QuoteIdent(table))
}
