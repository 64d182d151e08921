package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeRuleset(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write ruleset: %v", err)
	}
}

func TestFileStoreGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleset(t, dir, "customers-v1", `{
	  "ruleset_id": "customers-v1",
	  "name": "Customers",
	  "rules": [{
	    "source_table": "customers",
	    "source_columns": ["email"],
	    "target_table": "clients",
	    "target_columns": ["email_addr"],
	    "match_type": "exact",
	    "confidence_score": 0.95
	  }]
	}`)

	s := NewFileStore(dir)
	rs, err := s.Get(context.Background(), "customers-v1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rs.ID != "customers-v1" || len(rs.Rules) != 1 {
		t.Fatalf("Get() = %+v, want 1-rule set customers-v1", rs)
	}
	if rs.Rules[0].Confidence != 0.95 {
		t.Fatalf("confidence = %v, want 0.95", rs.Rules[0].Confidence)
	}
}

func TestFileStoreGetFillsMissingID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleset(t, dir, "anon", `{
	  "rules": [{
	    "source_table": "a", "source_columns": ["x"],
	    "target_table": "b", "target_columns": ["y"],
	    "confidence_score": 0.5
	  }]
	}`)

	rs, err := NewFileStore(dir).Get(context.Background(), "anon")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rs.ID != "anon" {
		t.Fatalf("ID = %q, want %q", rs.ID, "anon")
	}
}

func TestFileStoreNotFound(t *testing.T) {
	t.Parallel()

	s := NewFileStore(t.TempDir())
	_, err := s.Get(context.Background(), "missing")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("Get() error = %v, want *ErrNotFound", err)
	}
	if nf.ID != "missing" {
		t.Fatalf("ErrNotFound.ID = %q, want %q", nf.ID, "missing")
	}
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	s := NewFileStore(t.TempDir())
	if _, err := s.Get(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("Get() with path separators succeeded, want error")
	}
}

func TestFileStoreRejectsInvalidRuleset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleset(t, dir, "broken", `{
	  "ruleset_id": "broken",
	  "rules": [{
	    "source_table": "a", "source_columns": ["x", "y"],
	    "target_table": "b", "target_columns": ["z"],
	    "confidence_score": 0.5
	  }]
	}`)

	if _, err := NewFileStore(dir).Get(context.Background(), "broken"); err == nil {
		t.Fatal("Get() of arity-mismatched ruleset succeeded, want error")
	}
}
