package executor

import (
	"reconcile/internal/queries"
	"reconcile/internal/staging"
)

// Phase names the steps of an execution's state machine. Any step's failure
// transitions the run to PhaseFailed and aborts subsequent steps.
type Phase string

const (
	PhaseStarted         Phase = "STARTED"
	PhaseSourceExtracted Phase = "SOURCE_EXTRACTED"
	PhaseTargetExtracted Phase = "TARGET_EXTRACTED"
	PhaseReconciled      Phase = "RECONCILED"
	PhaseStored          Phase = "STORED"
	PhaseStagingResolved Phase = "STAGING_RESOLVED"
	PhaseDone            Phase = "DONE"
	PhaseFailed          Phase = "FAILED"
)

// Result is the complete outcome of one reconciliation execution.
type Result struct {
	ExecutionID string `json:"execution_id"`
	RulesetID   string `json:"ruleset_id"`

	queries.KPIs

	SourceStaging staging.Info `json:"source_staging"`
	TargetStaging staging.Info `json:"target_staging"`

	ExtractionTimeMs     int64 `json:"extraction_time_ms"`
	ReconciliationTimeMs int64 `json:"reconciliation_time_ms"`
	TotalTimeMs          int64 `json:"total_time_ms"`

	StoredDocumentID string `json:"stored_document_id,omitempty"`
	StagingRetained  bool   `json:"staging_retained"`
	StagingTTLHours  int    `json:"staging_ttl_hours"`
}

// summaryDocument is the compact record forwarded to the document store:
// ids, counts and KPIs only, never raw matched/unmatched rows.
type summaryDocument struct {
	ExecutionID          string  `bson:"execution_id"`
	RulesetID            string  `bson:"ruleset_id"`
	MatchedCount         int64   `bson:"matched_count"`
	UnmatchedSourceCount int64   `bson:"unmatched_source_count"`
	UnmatchedTargetCount int64   `bson:"unmatched_target_count"`
	TotalSourceCount     int64   `bson:"total_source_count"`
	TotalTargetCount     int64   `bson:"total_target_count"`
	RCR                  float64 `bson:"rcr"`
	RCRStatus            string  `bson:"rcr_status"`
	DQCS                 float64 `bson:"dqcs"`
	DQCSStatus           string  `bson:"dqcs_status"`
	REI                  float64 `bson:"rei"`
	TotalTimeMs          int64   `bson:"total_time_ms"`
}

func summarize(r *Result) summaryDocument {
	return summaryDocument{
		ExecutionID:          r.ExecutionID,
		RulesetID:            r.RulesetID,
		MatchedCount:         r.MatchedCount,
		UnmatchedSourceCount: r.UnmatchedSourceCount,
		UnmatchedTargetCount: r.UnmatchedTargetCount,
		TotalSourceCount:     r.TotalSourceCount,
		TotalTargetCount:     r.TotalTargetCount,
		RCR:                  r.RCR,
		RCRStatus:            r.RCRStatus,
		DQCS:                 r.DQCS,
		DQCSStatus:           r.DQCSStatus,
		REI:                  r.REI,
		TotalTimeMs:          r.TotalTimeMs,
	}
}
