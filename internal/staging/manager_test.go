package staging

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reconcile/internal/ddl"
	"reconcile/internal/rules"
)

// fakeStore records statements and serves scripted results.
type fakeStore struct {
	execSQL  []string
	execArgs [][]any
	execErr  func(sql string) error
	queryRow func(sql string, args ...any) pgx.Row
	query    func(sql string, args ...any) (pgx.Rows, error)
	inTx     func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

func (f *fakeStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.query == nil {
		return nil, errors.New("fakeStore: Query not scripted")
	}
	return f.query(sql, args...)
}

func (f *fakeStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRow == nil {
		panic("fakeStore: QueryRow not scripted")
	}
	return f.queryRow(sql, args...)
}

func (f *fakeStore) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return 0, f.execErr(sql)
	}
	return 0, nil
}

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if f.inTx == nil {
		return errors.New("fakeStore: InTx not scripted")
	}
	return f.inTx(ctx, fn)
}

func (f *fakeStore) CopyText(ctx context.Context, copySQL string, payload io.Reader) (int64, error) {
	return 0, errors.New("fakeStore: CopyText not scripted")
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }

// errRow scripts a single Scan outcome.
type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// oneRow scans the constant 1, as catalog existence checks return.
type oneRow struct{}

func (oneRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = 1
	return nil
}

// nameRows serves a fixed list of single-column string rows.
type nameRows struct {
	pgx.Rows
	names []string
	i     int
}

func (r *nameRows) Next() bool { r.i++; return r.i <= len(r.names) }
func (r *nameRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.names[r.i-1]
	return nil
}
func (r *nameRows) Close()     {}
func (r *nameRows) Err() error { return nil }

// recordTx records statements executed inside a transaction.
type recordTx struct {
	pgx.Tx
	sql  []string
	args [][]any
}

func (t *recordTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.sql = append(t.sql, sql)
	t.args = append(t.args, args)
	return pgconn.CommandTag{}, nil
}

func TestNameFor(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeStore{}, "", 0)
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	name := m.NameFor("3f2c9a14-9f1e-4a7e-9d2c-0b1a2c3d4e5f", rules.SideSource, ts, 0)
	if !strings.HasPrefix(name, "stage_") {
		t.Fatalf("name %q missing prefix", name)
	}
	if !strings.Contains(name, "_source_") {
		t.Fatalf("name %q missing side tag", name)
	}
	if !strings.HasSuffix(name, "20260830120000") {
		t.Fatalf("name %q missing timestamp suffix", name)
	}
	if len(name) > 63 {
		t.Fatalf("name length = %d, want <= 63", len(name))
	}

	// Long execution ids must not push the name past the identifier limit.
	long := m.NameFor(strings.Repeat("x", 200), rules.SideTarget, ts, 0)
	if len(long) > 63 {
		t.Fatalf("long-id name length = %d, want <= 63", len(long))
	}

	// Distinct executions yield distinct names.
	other := m.NameFor("another-execution", rules.SideSource, ts, 0)
	if other == name {
		t.Fatalf("names collide across executions: %q", name)
	}

	// Ordinals distinguish additional tables on the same side.
	second := m.NameFor("3f2c9a14-9f1e-4a7e-9d2c-0b1a2c3d4e5f", rules.SideSource, ts, 1)
	if !strings.Contains(second, "_source2_") {
		t.Fatalf("ordinal name %q missing source2 tag", second)
	}
	if second == name {
		t.Fatalf("ordinal name equals base name: %q", name)
	}
}

func TestTTLDefault(t *testing.T) {
	t.Parallel()

	if got := NewManager(&fakeStore{}, "", 0).TTL(); got != 24*time.Hour {
		t.Fatalf("default TTL = %v, want 24h", got)
	}
	if got := NewManager(&fakeStore{}, "", 6*time.Hour).TTL(); got != 6*time.Hour {
		t.Fatalf("TTL = %v, want 6h", got)
	}
}

func TestCreateRunsInOneTransaction(t *testing.T) {
	t.Parallel()

	tx := &recordTx{}
	store := &fakeStore{
		inTx: func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
			return fn(ctx, tx)
		},
	}
	m := NewManager(store, "landing", time.Hour)

	def := ddl.TableDef{
		Name:    "stage_abc_source_20260830120000",
		Columns: []ddl.ColumnDef{{Name: "email", Kind: ddl.KindText, Nullable: true}},
	}
	err := m.Create(context.Background(), def, Metadata{
		ExecutionID: "exec-1",
		RulesetID:   "rs-1",
		Side:        rules.SideSource,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if len(tx.sql) != 2 {
		t.Fatalf("statements in tx = %d, want 2 (create + metadata insert)", len(tx.sql))
	}
	if !strings.HasPrefix(tx.sql[0], "CREATE TABLE") {
		t.Fatalf("first statement = %q, want CREATE TABLE", tx.sql[0])
	}
	if !strings.Contains(tx.sql[1], "INSERT INTO") || !strings.Contains(tx.sql[1], MetadataTable) {
		t.Fatalf("second statement = %q, want metadata insert", tx.sql[1])
	}
	// status is recorded as active at creation.
	args := tx.args[1]
	if args[len(args)-1] != string(StatusActive) {
		t.Fatalf("recorded status = %v, want %q", args[len(args)-1], StatusActive)
	}
}

func TestDrop(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	m := NewManager(store, "landing", time.Hour)
	if err := m.Drop(context.Background(), "stage_gone"); err != nil {
		t.Fatalf("Drop() error: %v", err)
	}
	if len(store.execSQL) != 2 {
		t.Fatalf("exec count = %d, want 2", len(store.execSQL))
	}
	if want := `DROP TABLE IF EXISTS "landing"."stage_gone"`; store.execSQL[0] != want {
		t.Fatalf("drop SQL = %q, want %q", store.execSQL[0], want)
	}
	if !strings.Contains(store.execSQL[1], "SET status") {
		t.Fatalf("second statement = %q, want status update", store.execSQL[1])
	}
	if store.execArgs[1][0] != string(StatusDeleted) {
		t.Fatalf("status arg = %v, want %q", store.execArgs[1][0], StatusDeleted)
	}
}

func TestMetadataUnknownTable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		queryRow: func(sql string, args ...any) pgx.Row { return errRow{pgx.ErrNoRows} },
	}
	m := NewManager(store, "", time.Hour)
	md, err := m.Metadata(context.Background(), "stage_unknown")
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if md != nil {
		t.Fatalf("Metadata() = %+v, want nil for unknown table", md)
	}
}

func TestExists(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		queryRow: func(sql string, args ...any) pgx.Row {
			if !strings.Contains(sql, "information_schema.tables") {
				t.Errorf("existence check queried %q, want information_schema.tables", sql)
			}
			if args[0] == "stage_present" {
				return oneRow{}
			}
			return errRow{pgx.ErrNoRows}
		},
	}
	m := NewManager(store, "", time.Hour)

	ok, err := m.Exists(context.Background(), "stage_present")
	if err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v, want true, nil", ok, err)
	}
	ok, err = m.Exists(context.Background(), "stage_absent")
	if err != nil || ok {
		t.Fatalf("Exists(absent) = %v, %v, want false, nil", ok, err)
	}
}

// A table missing from the catalog yields a zero-valued Info without any
// further catalog queries against it.
func TestInfoMissingTable(t *testing.T) {
	t.Parallel()

	var countQueried bool
	store := &fakeStore{
		queryRow: func(sql string, args ...any) pgx.Row {
			if strings.Contains(sql, "information_schema.tables") {
				return errRow{pgx.ErrNoRows}
			}
			countQueried = true
			return errRow{errors.New("unexpected query")}
		},
	}
	m := NewManager(store, "", time.Hour)

	info := m.Info(context.Background(), "stage_gone")
	if info.TableName != "stage_gone" || info.RowCount != 0 || info.SizeMB != 0 || len(info.Indexes) != 0 {
		t.Fatalf("Info() = %+v, want zero-valued info", info)
	}
	if countQueried {
		t.Fatal("Info queried the table after the catalog reported it missing")
	}
}

func TestInfoDegradesOnCountFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		queryRow: func(sql string, args ...any) pgx.Row { return errRow{errors.New("relation gone")} },
	}
	m := NewManager(store, "", time.Hour)
	info := m.Info(context.Background(), "stage_x")
	if info.TableName != "stage_x" || info.RowCount != 0 || info.SizeMB != 0 {
		t.Fatalf("Info() = %+v, want zero-valued info", info)
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		query: func(sql string, args ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "status = 'active'") {
				t.Errorf("sweep query %q does not filter on active", sql)
			}
			return &nameRows{names: []string{"stage_old1", "stage_old2"}}, nil
		},
	}
	m := NewManager(store, "", time.Hour)

	dropped, err := m.SweepExpired(context.Background(), 0)
	if err != nil {
		t.Fatalf("SweepExpired() error: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	// Each table: mark expired, drop, mark deleted.
	if len(store.execSQL) != 6 {
		t.Fatalf("exec count = %d, want 6: %v", len(store.execSQL), store.execSQL)
	}
}

func TestSweepExpiredSkipsStuckTables(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		query: func(sql string, args ...any) (pgx.Rows, error) {
			return &nameRows{names: []string{"stage_stuck", "stage_ok"}}, nil
		},
	}
	store.execErr = func(sql string) error {
		if strings.Contains(sql, "stage_stuck") {
			return errors.New("lock timeout")
		}
		return nil
	}
	m := NewManager(store, "", time.Hour)

	dropped, err := m.SweepExpired(context.Background(), 0)
	if err != nil {
		t.Fatalf("SweepExpired() error: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1 (stuck table skipped)", dropped)
	}
}

func TestSweepExpiredTTLOverride(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	store := &fakeStore{
		query: func(sql string, args ...any) (pgx.Rows, error) {
			gotArgs = args
			if !strings.Contains(sql, "created_at <= $1") {
				t.Errorf("override query %q does not filter on created_at", sql)
			}
			return &nameRows{}, nil
		},
	}
	m := NewManager(store, "", time.Hour)

	if _, err := m.SweepExpired(context.Background(), 48*time.Hour); err != nil {
		t.Fatalf("SweepExpired() error: %v", err)
	}
	if len(gotArgs) != 1 {
		t.Fatalf("cutoff args = %v, want one timestamp", gotArgs)
	}
	cutoff, ok := gotArgs[0].(time.Time)
	if !ok {
		t.Fatalf("cutoff arg type = %T, want time.Time", gotArgs[0])
	}
	if time.Since(cutoff) < 47*time.Hour {
		t.Fatalf("cutoff %v not ~48h in the past", cutoff)
	}
}
