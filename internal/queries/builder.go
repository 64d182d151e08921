// Package queries synthesizes the reconciliation SQL executed inside the
// landing store.
//
// Rule data never reaches the generated SQL as raw strings: rules are first
// compiled into a small predicate AST whose identifiers are validated
// against the restricted vocabulary, then rendered with full quoting. A
// record pair matches when it satisfies any rule (OR of per-rule ANDed
// column equalities); with overlapping rules this can count ambiguous pairs
// under more than one rule, which is the agreed semantics for multi-rule
// rulesets.
package queries

import (
	"fmt"
	"strings"

	"reconcile/internal/ddl"
	"reconcile/internal/rules"
)

// Predicate is one column equality between the two staging tables.
type Predicate struct {
	SourceColumn string
	TargetColumn string
}

// RuleGroup is the compiled form of one rule: its predicates AND together,
// and groups OR together into the overall join condition.
type RuleGroup struct {
	Confidence float64
	Predicates []Predicate
}

// Compile builds rule groups for the staging tables that snapshot the given
// source/target pair. Rules referencing other tables are skipped; at least
// one rule must apply.
func Compile(rs *rules.RuleSet, src, tgt rules.TableRef) ([]RuleGroup, error) {
	var groups []RuleGroup
	for i, r := range rs.Rules {
		if (rules.TableRef{Schema: r.SourceSchema, Table: r.SourceTable}) != src ||
			(rules.TableRef{Schema: r.TargetSchema, Table: r.TargetTable}) != tgt {
			continue
		}
		g := RuleGroup{Confidence: r.Confidence}
		for j := range r.SourceColumns {
			sc, tc := r.SourceColumns[j], r.TargetColumns[j]
			if !rules.ValidIdent(sc) || !rules.ValidIdent(tc) {
				return nil, fmt.Errorf("rule %d: identifier outside allowed vocabulary: %q/%q", i, sc, tc)
			}
			g.Predicates = append(g.Predicates, Predicate{SourceColumn: sc, TargetColumn: tc})
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no rules join %s to %s", src, tgt)
	}
	return groups, nil
}

// render emits the OR-of-ANDs join condition with the given table aliases.
func render(groups []RuleGroup, srcAlias, tgtAlias string) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		preds := make([]string, len(g.Predicates))
		for j, p := range g.Predicates {
			preds[j] = fmt.Sprintf("%s.%s = %s.%s",
				srcAlias, ddl.QuoteIdent(p.SourceColumn),
				tgtAlias, ddl.QuoteIdent(p.TargetColumn))
		}
		parts[i] = "(" + strings.Join(preds, " AND ") + ")"
	}
	return strings.Join(parts, " OR ")
}

// BuildReconciliationQuery emits one statement computing every count and
// KPI for a run. Matched/unmatched counts use semi/anti-joins against the
// combined condition so matched + unmatched always partitions each side
// exactly; only the single aggregate row ever leaves the landing store.
//
// Output columns, in order: total_source, total_target, matched,
// unmatched_source, unmatched_target, total_rules, active_rules, rcr, dqcs,
// rei.
func BuildReconciliationQuery(schema, sourceTable, targetTable string, groups []RuleGroup) (string, error) {
	if len(groups) == 0 {
		return "", fmt.Errorf("at least one rule group is required")
	}
	src := ddl.Qualify(schema, sourceTable)
	tgt := ddl.Qualify(schema, targetTable)
	cond := render(groups, "s", "t")

	// Per-rule activity feeds DQCS (mean confidence of satisfied rules) and
	// rule utilization for REI.
	activity := make([]string, len(groups))
	for i, g := range groups {
		ruleCond := render([]RuleGroup{g}, "s", "t")
		activity[i] = fmt.Sprintf("    (%d, %v::float8, EXISTS (SELECT 1 FROM %s s JOIN %s t ON %s))",
			i+1, g.Confidence, src, tgt, ruleCond)
	}

	q := fmt.Sprintf(`WITH rule_activity AS (
  SELECT * FROM (VALUES
%s
  ) AS r(rule_no, confidence, active)
),
counts AS (
  SELECT
    (SELECT count(*) FROM %[2]s) AS total_source,
    (SELECT count(*) FROM %[3]s) AS total_target,
    (SELECT count(*) FROM %[2]s s WHERE EXISTS (SELECT 1 FROM %[3]s t WHERE %[4]s)) AS matched,
    (SELECT count(*) FROM %[2]s s WHERE NOT EXISTS (SELECT 1 FROM %[3]s t WHERE %[4]s)) AS unmatched_source,
    (SELECT count(*) FROM %[3]s t WHERE NOT EXISTS (SELECT 1 FROM %[2]s s WHERE %[4]s)) AS unmatched_target
),
rule_stats AS (
  SELECT
    count(*) AS total_rules,
    count(*) FILTER (WHERE active) AS active_rules,
    COALESCE(avg(confidence) FILTER (WHERE active), 0) AS dqcs
  FROM rule_activity
)
SELECT
  c.total_source,
  c.total_target,
  c.matched,
  c.unmatched_source,
  c.unmatched_target,
  r.total_rules,
  r.active_rules,
  CASE WHEN c.total_source > 0 THEN c.matched * 100.0 / c.total_source ELSE 0 END AS rcr,
  r.dqcs,
  0.7 * (CASE WHEN c.total_source > 0 THEN c.matched * 100.0 / c.total_source ELSE 0 END)
    + 0.3 * (r.active_rules * 100.0 / r.total_rules) AS rei
FROM counts c, rule_stats r`,
		strings.Join(activity, ",\n"), src, tgt, cond)

	return q, nil
}

// SampleKind selects which record set BuildSampleQuery pages through.
type SampleKind string

const (
	SampleMatched         SampleKind = "matched"
	SampleUnmatchedSource SampleKind = "unmatched_source"
	SampleUnmatchedTarget SampleKind = "unmatched_target"
)

// maxSampleLimit bounds how many example records one page may return.
const maxSampleLimit = 500

// BuildSampleQuery emits a bounded, paginated query over example records
// for human inspection. It is never part of the KPI computation path.
func BuildSampleQuery(schema, sourceTable, targetTable string, groups []RuleGroup, kind SampleKind, limit, offset int) (string, error) {
	if len(groups) == 0 {
		return "", fmt.Errorf("at least one rule group is required")
	}
	if limit <= 0 || limit > maxSampleLimit {
		limit = maxSampleLimit
	}
	if offset < 0 {
		offset = 0
	}
	src := ddl.Qualify(schema, sourceTable)
	tgt := ddl.Qualify(schema, targetTable)
	cond := render(groups, "s", "t")
	order := ddl.QuoteIdent(ddl.SurrogateIDColumn)

	var q string
	switch kind {
	case SampleMatched:
		q = fmt.Sprintf("SELECT s.* FROM %s s WHERE EXISTS (SELECT 1 FROM %s t WHERE %s) ORDER BY s.%s",
			src, tgt, cond, order)
	case SampleUnmatchedSource:
		q = fmt.Sprintf("SELECT s.* FROM %s s WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE %s) ORDER BY s.%s",
			src, tgt, cond, order)
	case SampleUnmatchedTarget:
		q = fmt.Sprintf("SELECT t.* FROM %s t WHERE NOT EXISTS (SELECT 1 FROM %s s WHERE %s) ORDER BY t.%s",
			tgt, src, cond, order)
	default:
		return "", fmt.Errorf("unknown sample kind %q", kind)
	}
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", q, limit, offset), nil
}
