package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store loads rulesets by id. The production implementation lives in the
// rule-generation subsystem; FileStore below is the local implementation
// used by the CLI and by tests.
type Store interface {
	Get(ctx context.Context, id string) (*RuleSet, error)
}

// ErrNotFound is returned by stores when no ruleset exists for an id.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("ruleset %q not found", e.ID) }

// FileStore reads rulesets from a directory of <id>.json documents.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

// Get decodes <dir>/<id>.json into a RuleSet and validates it.
func (s *FileStore) Get(_ context.Context, id string) (*RuleSet, error) {
	if strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid ruleset id %q", id)
	}
	path := filepath.Join(s.Dir, id+".json")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{ID: id}
		}
		return nil, fmt.Errorf("open ruleset: %w", err)
	}
	defer f.Close()

	var rs RuleSet
	if err := json.NewDecoder(f).Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode ruleset %s: %w", id, err)
	}
	if rs.ID == "" {
		rs.ID = id
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", id, err)
	}
	return &rs, nil
}
