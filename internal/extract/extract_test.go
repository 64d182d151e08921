package extract

import (
	"context"
	"testing"

	"reconcile/internal/reconerr"
	"reconcile/internal/rules"
	"reconcile/internal/source"
	"reconcile/internal/staging"
)

func TestNewDefaultsBatchSize(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, staging.NewManager(&fakeStore{}, "", 0), Options{BatchSize: -1})
	if e.opts.BatchSize != 1000 {
		t.Fatalf("BatchSize = %d, want 1000", e.opts.BatchSize)
	}
}

func TestExtractToStagingNoTables(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, staging.NewManager(&fakeStore{}, "", 0), Options{})
	e.openFn = func(ctx context.Context, ci source.ConnInfo) (*source.Conn, error) {
		t.Fatal("openFn called for empty table set")
		return nil, nil
	}

	rs := &rules.RuleSet{ID: "rs-empty"}
	_, err := e.ExtractToStaging(context.Background(), source.ConnInfo{}, rs, "exec-1", rules.SideSource, 0)
	if !reconerr.Is(err, reconerr.CodeConfiguration) {
		t.Fatalf("ExtractToStaging() error = %v, want %s", err, reconerr.CodeConfiguration)
	}
}

func TestExtractToStagingOpenFailure(t *testing.T) {
	t.Parallel()

	e := New(&fakeStore{}, staging.NewManager(&fakeStore{}, "", 0), Options{})
	e.openFn = func(ctx context.Context, ci source.ConnInfo) (*source.Conn, error) {
		return nil, reconerr.Newf(reconerr.CodeConnectivity, "ping %s: refused", ci.Host)
	}

	rs := &rules.RuleSet{
		ID: "rs-1",
		Rules: []rules.Rule{{
			SourceTable: "customers", SourceColumns: []string{"email"},
			TargetTable: "clients", TargetColumns: []string{"email"},
			Confidence: 1,
		}},
	}
	_, err := e.ExtractToStaging(context.Background(), source.ConnInfo{Host: "down"}, rs, "exec-1", rules.SideSource, 0)
	if !reconerr.Is(err, reconerr.CodeConnectivity) {
		t.Fatalf("ExtractToStaging() error = %v, want %s", err, reconerr.CodeConnectivity)
	}
}

func TestResultPrimary(t *testing.T) {
	t.Parallel()

	var empty Result
	if empty.Primary() != nil {
		t.Fatal("Primary() of empty result != nil")
	}

	r := Result{Tables: []StagedTable{
		{TableName: "stage_a", RowCount: 10},
		{TableName: "stage_b", RowCount: 5},
	}}
	if r.Primary().TableName != "stage_a" {
		t.Fatalf("Primary() = %s, want stage_a", r.Primary().TableName)
	}
	if r.RowCount() != 15 {
		t.Fatalf("RowCount() = %d, want 15", r.RowCount())
	}
}
