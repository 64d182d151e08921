package queries

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Status bands for the derived KPIs.
const (
	RCRHealthy  = "HEALTHY"
	RCRWarning  = "WARNING"
	RCRCritical = "CRITICAL"

	DQCSGood       = "GOOD"
	DQCSAcceptable = "ACCEPTABLE"
	DQCSPoor       = "POOR"
)

// KPIs is the single aggregate row a reconciliation query produces, plus
// the derived status bands. Computed once per execution, never
// incrementally.
type KPIs struct {
	MatchedCount         int64   `json:"matched_count"`
	UnmatchedSourceCount int64   `json:"unmatched_source_count"`
	UnmatchedTargetCount int64   `json:"unmatched_target_count"`
	TotalSourceCount     int64   `json:"total_source_count"`
	TotalTargetCount     int64   `json:"total_target_count"`
	TotalRules           int64   `json:"total_rules"`
	ActiveRules          int64   `json:"active_rules"`
	RCR                  float64 `json:"rcr"`
	RCRStatus            string  `json:"rcr_status"`
	DQCS                 float64 `json:"dqcs"`
	DQCSStatus           string  `json:"dqcs_status"`
	REI                  float64 `json:"rei"`
}

// ScanKPIs reads the aggregate row produced by BuildReconciliationQuery and
// fills in the status bands.
func ScanKPIs(row pgx.Row) (*KPIs, error) {
	var k KPIs
	if err := row.Scan(
		&k.TotalSourceCount,
		&k.TotalTargetCount,
		&k.MatchedCount,
		&k.UnmatchedSourceCount,
		&k.UnmatchedTargetCount,
		&k.TotalRules,
		&k.ActiveRules,
		&k.RCR,
		&k.DQCS,
		&k.REI,
	); err != nil {
		return nil, fmt.Errorf("scan reconciliation result: %w", err)
	}
	k.RCRStatus = RCRBand(k.RCR)
	k.DQCSStatus = DQCSBand(k.DQCS)
	return &k, nil
}

// RCRBand classifies a Reconciliation Coverage Rate percentage.
func RCRBand(rcr float64) string {
	switch {
	case rcr >= 90:
		return RCRHealthy
	case rcr >= 80:
		return RCRWarning
	default:
		return RCRCritical
	}
}

// DQCSBand classifies a Data Quality Confidence Score in [0,1].
func DQCSBand(dqcs float64) string {
	switch {
	case dqcs >= 0.8:
		return DQCSGood
	case dqcs >= 0.7:
		return DQCSAcceptable
	default:
		return DQCSPoor
	}
}
