// Package rules defines the reconciliation ruleset model consumed by the
// pipeline and the storage contract used to load rulesets.
//
// Rulesets are produced and owned by an external rule-generation subsystem;
// this package treats them as read-only inputs. The JSON shapes here mirror
// the ruleset documents that subsystem emits.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MatchType classifies how a rule matches records across the two systems.
type MatchType string

const (
	MatchExact          MatchType = "exact"
	MatchFuzzy          MatchType = "fuzzy"
	MatchComposite      MatchType = "composite"
	MatchTransformation MatchType = "transformation"
	MatchSemantic       MatchType = "semantic"
)

// Side tags which half of a reconciliation a staging table or column list
// belongs to.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// Rule describes one correspondence between a source table and a target
// table. Column lists are positional: SourceColumns[i] matches
// TargetColumns[i].
type Rule struct {
	SourceSchema  string    `json:"source_schema"`
	SourceTable   string    `json:"source_table"`
	SourceColumns []string  `json:"source_columns"`
	TargetSchema  string    `json:"target_schema"`
	TargetTable   string    `json:"target_table"`
	TargetColumns []string  `json:"target_columns"`
	MatchType     MatchType `json:"match_type"`
	Confidence    float64   `json:"confidence_score"`
	Rationale     string    `json:"rationale,omitempty"`
}

// RuleSet is a named, ordered collection of rules plus provenance.
type RuleSet struct {
	ID          string    `json:"ruleset_id"`
	Name        string    `json:"name"`
	Schemas     []string  `json:"schemas,omitempty"`
	Rules       []Rule    `json:"rules"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	SourceGraph string    `json:"source_graph,omitempty"`
}

// TableRef identifies one (schema, table) pair referenced by a ruleset.
type TableRef struct {
	Schema string
	Table  string
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// Tables returns the distinct (schema, table) pairs referenced by the
// ruleset for the given side, in first-seen rule order.
func (rs *RuleSet) Tables(side Side) []TableRef {
	var out []TableRef
	seen := map[TableRef]bool{}
	for _, r := range rs.Rules {
		ref := TableRef{Schema: r.SourceSchema, Table: r.SourceTable}
		if side == SideTarget {
			ref = TableRef{Schema: r.TargetSchema, Table: r.TargetTable}
		}
		if ref.Table == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// JoinColumns returns the distinct columns the ruleset joins on for the
// given side and table, in rule order. These drive staging-table indexing.
func (rs *RuleSet) JoinColumns(side Side, ref TableRef) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range rs.Rules {
		cols := r.SourceColumns
		t := TableRef{Schema: r.SourceSchema, Table: r.SourceTable}
		if side == SideTarget {
			cols = r.TargetColumns
			t = TableRef{Schema: r.TargetSchema, Table: r.TargetTable}
		}
		if t != ref {
			continue
		}
		for _, c := range cols {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// identRe is the restricted identifier vocabulary accepted from rule data.
// Anything outside it is rejected before reaching generated SQL.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidIdent reports whether s is acceptable as a schema/table/column
// identifier in generated SQL.
func ValidIdent(s string) bool {
	return s != "" && len(s) <= 128 && identRe.MatchString(s)
}

// Validate checks structural soundness of the ruleset: at least one rule,
// positional column lists of equal arity, confidences within [0,1], and all
// identifiers drawn from the restricted vocabulary.
func (rs *RuleSet) Validate() error {
	if strings.TrimSpace(rs.ID) == "" {
		return fmt.Errorf("ruleset id is empty")
	}
	if len(rs.Rules) == 0 {
		return fmt.Errorf("ruleset %s has no rules", rs.ID)
	}
	for i, r := range rs.Rules {
		if len(r.SourceColumns) == 0 || len(r.SourceColumns) != len(r.TargetColumns) {
			return fmt.Errorf("rule %d: source/target column lists must be non-empty and of equal length", i)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %d: confidence %v outside [0,1]", i, r.Confidence)
		}
		for _, id := range []string{r.SourceTable, r.TargetTable} {
			if !ValidIdent(id) {
				return fmt.Errorf("rule %d: invalid identifier %q", i, id)
			}
		}
		for _, id := range r.SourceColumns {
			if !ValidIdent(id) {
				return fmt.Errorf("rule %d: invalid identifier %q", i, id)
			}
		}
		for _, id := range r.TargetColumns {
			if !ValidIdent(id) {
				return fmt.Errorf("rule %d: invalid identifier %q", i, id)
			}
		}
		for _, sch := range []string{r.SourceSchema, r.TargetSchema} {
			if sch != "" && !ValidIdent(sch) {
				return fmt.Errorf("rule %d: invalid schema %q", i, sch)
			}
		}
	}
	return nil
}
