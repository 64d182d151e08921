// Package staging manages the ephemeral tables a reconciliation run stages
// its extracted snapshots into. The manager owns table naming, creation,
// join-column indexing, catalog introspection, and the TTL-driven sweep of
// leftover tables; the tables themselves live in the landing store.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/zeebo/xxh3"

	"reconcile/internal/ddl"
	"reconcile/internal/landing"
	"reconcile/internal/rules"
)

// MetadataTable is the landing-store table tracking staging lifecycles.
const MetadataTable = "recon_staging_tables"

const metadataDDL = `CREATE TABLE IF NOT EXISTS %s (
  table_name    TEXT PRIMARY KEY,
  execution_id  TEXT NOT NULL,
  ruleset_id    TEXT NOT NULL,
  side          TEXT NOT NULL,
  source_vendor TEXT NOT NULL DEFAULT '',
  source_host   TEXT NOT NULL DEFAULT '',
  row_count     BIGINT NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at    TIMESTAMPTZ NOT NULL,
  status        TEXT NOT NULL DEFAULT 'active'
)`

// Manager creates, tracks and destroys staging tables in one landing-store
// schema. It is safe for concurrent use by independent executions; names
// are collision-resistant across executions.
type Manager struct {
	store  landing.Store
	schema string
	ttl    time.Duration
}

// NewManager returns a Manager writing into the given landing schema (""
// means the connection default) with the configured staging TTL.
func NewManager(store landing.Store, schema string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, schema: schema, ttl: ttl}
}

// TTL returns the configured staging time-to-live.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Schema returns the landing schema staging tables are created in.
func (m *Manager) Schema() string { return m.schema }

// Bootstrap creates the metadata table if it does not exist.
func (m *Manager) Bootstrap(ctx context.Context) error {
	sql := fmt.Sprintf(metadataDDL, ddl.Qualify(m.schema, MetadataTable))
	if _, err := m.store.Exec(ctx, sql); err != nil {
		return fmt.Errorf("staging: bootstrap metadata table: %w", err)
	}
	return nil
}

// NameFor derives a deterministic, collision-resistant staging table name.
// The execution id is folded through xxh3 so the name stays well under the
// landing store's 63-byte identifier limit regardless of id length. ordinal
// distinguishes multiple tables staged for the same side (0 for the first).
func (m *Manager) NameFor(executionID string, side rules.Side, ts time.Time, ordinal int) string {
	sideTag := string(side)
	if ordinal > 0 {
		sideTag = fmt.Sprintf("%s%d", side, ordinal+1)
	}
	return fmt.Sprintf("stage_%016x_%s_%s",
		xxh3.HashString(executionID), sideTag, ts.UTC().Format("20060102150405"))
}

// Create issues the staging DDL and records the metadata row, both inside
// one transaction so a half-created table never appears as active.
func (m *Manager) Create(ctx context.Context, def ddl.TableDef, meta Metadata) error {
	def.Schema = m.schema
	createSQL, err := ddl.BuildCreateStagingSQL(def)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	meta.TableName = def.Name
	meta.CreatedAt = now
	meta.ExpiresAt = now.Add(m.ttl)
	meta.Status = StatusActive

	insert := fmt.Sprintf(`INSERT INTO %s
  (table_name, execution_id, ruleset_id, side, source_vendor, source_host, row_count, created_at, expires_at, status)
  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, m.metaFQN())

	return m.store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return fmt.Errorf("staging: create %s: %w", def.Name, err)
		}
		if _, err := tx.Exec(ctx, insert,
			meta.TableName, meta.ExecutionID, meta.RulesetID, string(meta.Side),
			meta.SourceVendor, meta.SourceHost, meta.RowCount,
			meta.CreatedAt, meta.ExpiresAt, string(meta.Status),
		); err != nil {
			return fmt.Errorf("staging: record metadata for %s: %w", def.Name, err)
		}
		return nil
	})
}

// Index creates one index per join column. Index statements are idempotent;
// re-indexing an already-indexed table is not an error.
func (m *Manager) Index(ctx context.Context, table string, columns []string) error {
	for _, col := range columns {
		if _, err := m.store.Exec(ctx, ddl.BuildIndexSQL(m.schema, table, col)); err != nil {
			return fmt.Errorf("staging: index %s(%s): %w", table, col, err)
		}
	}
	return nil
}

// SetRowCount refreshes the metadata row count after a load completes.
func (m *Manager) SetRowCount(ctx context.Context, table string, n int64) error {
	sql := fmt.Sprintf("UPDATE %s SET row_count = $1 WHERE table_name = $2", m.metaFQN())
	if _, err := m.store.Exec(ctx, sql, n, table); err != nil {
		return fmt.Errorf("staging: update row count for %s: %w", table, err)
	}
	return nil
}

// Metadata returns the tracked metadata row for a staging table, or nil
// when the table is unknown.
func (m *Manager) Metadata(ctx context.Context, table string) (*Metadata, error) {
	sql := fmt.Sprintf(`SELECT table_name, execution_id, ruleset_id, side, source_vendor,
  source_host, row_count, created_at, expires_at, status FROM %s WHERE table_name = $1`, m.metaFQN())

	var md Metadata
	var side, status string
	err := m.store.QueryRow(ctx, sql, table).Scan(
		&md.TableName, &md.ExecutionID, &md.RulesetID, &side, &md.SourceVendor,
		&md.SourceHost, &md.RowCount, &md.CreatedAt, &md.ExpiresAt, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staging: read metadata for %s: %w", table, err)
	}
	md.Side = rules.Side(side)
	md.Status = Status(status)
	return &md, nil
}

// Info introspects the landing catalog for row count, storage size and index
// names. Introspection failures degrade to a zero-valued Info rather than
// failing the caller.
func (m *Manager) Info(ctx context.Context, table string) Info {
	info := Info{TableName: table, Indexes: []string{}}

	// A table dropped between reconciliation and introspection reports as
	// absent instead of failing every catalog query below.
	if ok, err := m.Exists(ctx, table); err != nil {
		log.Printf("staging: info: existence check for %s failed: %v", table, err)
	} else if !ok {
		log.Printf("staging: info: %s not in catalog", table)
		return info
	}

	var count int64
	countSQL := "SELECT count(*) FROM " + ddl.Qualify(m.schema, table)
	if err := m.store.QueryRow(ctx, countSQL).Scan(&count); err != nil {
		log.Printf("staging: info: count %s failed: %v", table, err)
		return info
	}
	info.RowCount = count

	var bytes int64
	if err := m.store.QueryRow(ctx,
		"SELECT pg_total_relation_size($1::regclass)",
		ddl.Qualify(m.schema, table),
	).Scan(&bytes); err != nil {
		log.Printf("staging: info: size of %s failed: %v", table, err)
	} else {
		info.SizeMB = float64(bytes) / (1024 * 1024)
	}

	rows, err := m.store.Query(ctx,
		"SELECT indexname FROM pg_indexes WHERE tablename = $1 ORDER BY indexname", table)
	if err != nil {
		log.Printf("staging: info: indexes of %s failed: %v", table, err)
		return info
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Printf("staging: info: scan index name: %v", err)
			break
		}
		info.Indexes = append(info.Indexes, name)
	}
	return info
}

// Drop removes a staging table and marks its metadata deleted. Dropping a
// table that no longer exists is not an error.
func (m *Manager) Drop(ctx context.Context, table string) error {
	if _, err := m.store.Exec(ctx, "DROP TABLE IF EXISTS "+ddl.Qualify(m.schema, table)); err != nil {
		return fmt.Errorf("staging: drop %s: %w", table, err)
	}
	sql := fmt.Sprintf("UPDATE %s SET status = $1 WHERE table_name = $2", m.metaFQN())
	if _, err := m.store.Exec(ctx, sql, string(StatusDeleted), table); err != nil {
		return fmt.Errorf("staging: mark %s deleted: %w", table, err)
	}
	return nil
}

// SweepExpired drops every active staging table whose TTL has passed and
// returns how many were dropped. ttl <= 0 uses each row's recorded
// expires_at; a positive ttl overrides it against created_at. Per-table
// failures are logged and skipped so one stuck table cannot wedge the sweep.
func (m *Manager) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	var sql string
	var args []any
	if ttl > 0 {
		sql = fmt.Sprintf("SELECT table_name FROM %s WHERE status = 'active' AND created_at <= $1", m.metaFQN())
		args = []any{time.Now().UTC().Add(-ttl)}
	} else {
		sql = fmt.Sprintf("SELECT table_name FROM %s WHERE status = 'active' AND expires_at <= now()", m.metaFQN())
	}

	rows, err := m.store.Query(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("staging: sweep query: %w", err)
	}
	var expired []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("staging: sweep scan: %w", err)
		}
		expired = append(expired, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("staging: sweep rows: %w", err)
	}

	markSQL := fmt.Sprintf("UPDATE %s SET status = $1 WHERE table_name = $2", m.metaFQN())
	dropped := 0
	for _, name := range expired {
		if _, err := m.store.Exec(ctx, markSQL, string(StatusExpired), name); err != nil {
			log.Printf("staging: sweep: mark %s expired: %v", name, err)
			continue
		}
		if err := m.Drop(ctx, name); err != nil {
			log.Printf("staging: sweep: drop %s: %v", name, err)
			continue
		}
		dropped++
	}
	if len(expired) > 0 {
		log.Printf("staging: sweep dropped=%d candidates=%d", dropped, len(expired))
	}
	return dropped, nil
}

// Exists reports whether a table is present in the landing catalog.
func (m *Manager) Exists(ctx context.Context, table string) (bool, error) {
	var one int
	err := m.store.QueryRow(ctx,
		"SELECT 1 FROM information_schema.tables WHERE table_name = $1", table).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) metaFQN() string { return ddl.Qualify(m.schema, MetadataTable) }
