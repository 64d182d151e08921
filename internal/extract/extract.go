// Package extract moves snapshots of source/target tables into freshly
// created staging tables in the landing store.
//
// For each distinct table a ruleset references on one side, the extractor
// opens the external database with the vendor's dialect, reads the rows
// (optionally row-capped), derives a portable staging schema from the
// driver-reported column types, creates and indexes the staging table, and
// bulk-loads the rows. Loading prefers the COPY fast path and falls back to
// batched inserts automatically when the fast path fails — the pipeline's
// only automatic retry behavior.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"reconcile/internal/ddl"
	"reconcile/internal/landing"
	"reconcile/internal/reconerr"
	"reconcile/internal/rules"
	"reconcile/internal/source"
	"reconcile/internal/staging"
)

// Options tunes the load strategy.
type Options struct {
	// BatchSize is the row count per fallback INSERT batch.
	BatchSize int
	// BulkLoad enables the COPY fast path. When false the fallback batched
	// path is used directly.
	BulkLoad bool
}

// StagedTable describes one staging table produced by an extraction.
type StagedTable struct {
	TableName   string
	SourceRef   rules.TableRef
	Columns     []string
	JoinColumns []string
	RowCount    int64
}

// Result is the outcome of extracting one side of a reconciliation.
type Result struct {
	// Tables lists one entry per distinct table the ruleset references for
	// this side, in rule order. The first entry drives the reconciliation
	// query; the rest are staged for ad-hoc joins.
	Tables  []StagedTable
	Elapsed time.Duration
}

// Primary returns the staging table the reconciliation query joins on.
func (r *Result) Primary() *StagedTable {
	if len(r.Tables) == 0 {
		return nil
	}
	return &r.Tables[0]
}

// RowCount sums rows across all staged tables.
func (r *Result) RowCount() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.RowCount
	}
	return n
}

// Extractor stages external table snapshots into the landing store.
type Extractor struct {
	store landing.Store
	mgr   *staging.Manager
	opts  Options

	// openFn is a test seam; production points at source.Open.
	openFn func(ctx context.Context, ci source.ConnInfo) (*source.Conn, error)
}

// New returns an Extractor writing through the given landing store and
// staging manager.
func New(store landing.Store, mgr *staging.Manager, opts Options) *Extractor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &Extractor{store: store, mgr: mgr, opts: opts, openFn: source.Open}
}

// ExtractToStaging stages every distinct table the ruleset references for
// the given side. Tables created before a failure are left active; cleanup
// on failure is the caller's responsibility.
func (e *Extractor) ExtractToStaging(
	ctx context.Context,
	ci source.ConnInfo,
	rs *rules.RuleSet,
	executionID string,
	side rules.Side,
	limit int,
) (*Result, error) {
	start := time.Now()

	refs := rs.Tables(side)
	if len(refs) == 0 {
		return nil, reconerr.Newf(reconerr.CodeConfiguration,
			"ruleset %s references no %s tables", rs.ID, side)
	}

	conn, err := e.openFn(ctx, ci)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res := &Result{}
	for i, ref := range refs {
		st, err := e.extractTable(ctx, conn, ci, rs, executionID, side, ref, i, limit)
		if err != nil {
			return nil, err
		}
		res.Tables = append(res.Tables, *st)
	}
	res.Elapsed = time.Since(start)
	log.Printf("extract side=%s tables=%d rows=%d elapsed=%s",
		side, len(res.Tables), res.RowCount(), res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// extractTable stages one (schema, table) pair: read, infer, create, index,
// load, refresh count.
func (e *Extractor) extractTable(
	ctx context.Context,
	conn *source.Conn,
	ci source.ConnInfo,
	rs *rules.RuleSet,
	executionID string,
	side rules.Side,
	ref rules.TableRef,
	ordinal, limit int,
) (*StagedTable, error) {
	query := conn.Dialect.SelectAll(ref.Schema, ref.Table, limit)
	runQuery := func() (*sql.Rows, error) {
		rows, err := conn.DB.QueryContext(ctx, query)
		if err != nil {
			return nil, reconerr.Newf(reconerr.CodeExtraction, "select from %s: %w", ref, err)
		}
		return rows, nil
	}

	rows, err := runQuery()
	if err != nil {
		return nil, err
	}

	columns, def, err := stagingSchema(rows)
	if err != nil {
		rows.Close()
		return nil, reconerr.Newf(reconerr.CodeExtraction, "schema of %s: %w", ref, err)
	}

	name := e.mgr.NameFor(executionID, side, time.Now(), ordinal)
	def.Name = name
	if err := e.mgr.Create(ctx, def, staging.Metadata{
		ExecutionID:  executionID,
		RulesetID:    rs.ID,
		Side:         side,
		SourceVendor: ci.Vendor,
		SourceHost:   ci.Host,
	}); err != nil {
		rows.Close()
		return nil, err
	}

	joinCols := rs.JoinColumns(side, ref)
	if err := e.mgr.Index(ctx, name, joinCols); err != nil {
		rows.Close()
		return nil, err
	}

	loaded, err := e.load(ctx, name, columns, rows, runQuery)
	if err != nil {
		return nil, err
	}

	if err := e.mgr.SetRowCount(ctx, name, loaded); err != nil {
		return nil, err
	}

	return &StagedTable{
		TableName:   name,
		SourceRef:   ref,
		Columns:     columns,
		JoinColumns: joinCols,
		RowCount:    loaded,
	}, nil
}

// load drains rows into the staging table. With bulk loading enabled it
// tries the COPY fast path first; on failure it truncates the partial load,
// re-runs the source query, and retries through the batched fallback.
func (e *Extractor) load(
	ctx context.Context,
	table string,
	columns []string,
	rows *sql.Rows,
	rerun func() (*sql.Rows, error),
) (int64, error) {
	if e.opts.BulkLoad {
		in, errc := streamRows(ctx, rows, len(columns))
		n, copyErr := FastLoad(ctx, e.store, e.mgr.Schema(), table, columns, in)
		for range in {
			// Drain so the reader goroutine can finish after a failure.
		}
		readErr := <-errc
		if copyErr == nil && readErr == nil {
			return n, nil
		}
		if readErr != nil && copyErr == nil {
			return 0, reconerr.Newf(reconerr.CodeExtraction, "read source rows: %w", readErr)
		}
		log.Printf("extract: bulk load into %s failed, falling back to batched inserts: %v", table, copyErr)

		if _, err := e.store.Exec(ctx, "TRUNCATE TABLE "+ddl.Qualify(e.mgr.Schema(), table)); err != nil {
			return 0, reconerr.Newf(reconerr.CodeLoad, "reset %s after failed bulk load: %w", table, err)
		}
		fresh, err := rerun()
		if err != nil {
			return 0, reconerr.Newf(reconerr.CodeLoad, "re-read source for fallback: %w", err)
		}
		rows = fresh
	}

	in, errc := streamRows(ctx, rows, len(columns))
	n, err := BatchLoad(ctx, e.store, e.mgr.Schema(), table, columns, in, e.opts.BatchSize)
	if err != nil {
		for range in {
			// Drain the reader goroutine before reporting.
		}
		<-errc
		return n, reconerr.Newf(reconerr.CodeLoad, "batched load into %s: %w", table, err)
	}
	if readErr := <-errc; readErr != nil {
		return n, reconerr.Newf(reconerr.CodeExtraction, "read source rows: %w", readErr)
	}
	return n, nil
}

// stagingSchema captures column names and driver types from a result set
// and derives the portable staging definition. Data columns are created
// nullable; foreign snapshots routinely carry NULLs the source catalog did
// not declare.
func stagingSchema(rows *sql.Rows) ([]string, ddl.TableDef, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, ddl.TableDef{}, err
	}
	if len(columns) == 0 {
		return nil, ddl.TableDef{}, fmt.Errorf("result set has no columns")
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, ddl.TableDef{}, err
	}

	def := ddl.TableDef{Columns: make([]ddl.ColumnDef, len(columns))}
	for i, name := range columns {
		def.Columns[i] = ddl.ColumnDef{
			Name:     name,
			Kind:     mapDriverType(types[i].DatabaseTypeName()),
			Nullable: true,
		}
	}
	return columns, def, nil
}

// streamRows scans a result set into a bounded channel of positional rows.
// The error channel receives exactly one value (nil on clean completion)
// after the row channel closes.
func streamRows(ctx context.Context, rows *sql.Rows, ncols int) (<-chan []any, <-chan error) {
	out := make(chan []any, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			vals := make([]any, ncols)
			ptrs := make([]any, ncols)
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				errc <- err
				return
			}
			select {
			case out <- vals:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- rows.Err()
	}()
	return out, errc
}
