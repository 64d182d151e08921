// Package executor orchestrates a full reconciliation run: health check,
// ruleset load, source/target extraction into staging tables, the set-based
// reconciliation query, optional result storage, and staging resolution.
//
// Execution is a linear state machine. Phases run in a fixed order and any
// fatal failure aborts the remaining ones; staging tables already created by
// the failed run are dropped best-effort unless retention was requested.
// Document-store failures are the one exception: they are warnings and never
// fail a run that computed its KPIs.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reconcile/internal/docstore"
	"reconcile/internal/extract"
	"reconcile/internal/landing"
	"reconcile/internal/metrics"
	"reconcile/internal/queries"
	"reconcile/internal/reconerr"
	"reconcile/internal/rules"
	"reconcile/internal/source"
	"reconcile/internal/staging"
)

// sideExtractor stages one side of a reconciliation. Production uses
// extract.Extractor; tests substitute fakes.
type sideExtractor interface {
	ExtractToStaging(ctx context.Context, ci source.ConnInfo, rs *rules.RuleSet,
		executionID string, side rules.Side, limit int) (*extract.Result, error)
}

// stagingManager is the slice of staging.Manager the executor needs.
type stagingManager interface {
	Schema() string
	TTL() time.Duration
	Info(ctx context.Context, table string) staging.Info
	Drop(ctx context.Context, table string) error
}

// Request describes one reconciliation run.
type Request struct {
	RulesetID string
	Source    source.ConnInfo
	Target    source.ConnInfo
	// Limit caps rows read per table; <= 0 means unlimited.
	Limit int
	// KeepStaging retains staging tables after the run instead of dropping
	// them. Retained tables remain subject to the TTL sweep.
	KeepStaging bool
	// StoreResult forwards the execution summary to the document store.
	StoreResult bool
}

// Executor runs reconciliations against one landing store.
type Executor struct {
	store    landing.Store
	ext      sideExtractor
	mgr      stagingManager
	rules    rules.Store
	docs     docstore.Store
	parallel bool
}

// New wires an Executor. docs may be nil when no document store is
// configured; parallel extracts source and target concurrently.
func New(store landing.Store, ext sideExtractor, mgr stagingManager,
	ruleStore rules.Store, docs docstore.Store, parallel bool) *Executor {
	return &Executor{store: store, ext: ext, mgr: mgr, rules: ruleStore, docs: docs, parallel: parallel}
}

// Execute runs the full pipeline for one request. On fatal failure the
// returned error carries a reconerr code identifying the failing phase, and
// any staging tables the run created are dropped unless retention was
// requested. A failed extraction may orphan a partially staged table whose
// name never reached the executor; the TTL sweep reclaims those.
func (e *Executor) Execute(ctx context.Context, req Request) (res *Result, retErr error) {
	start := time.Now()
	executionID := uuid.NewString()
	job := req.RulesetID

	defer func() { metrics.RecordExecution(job, retErr) }()

	res = &Result{
		ExecutionID:     executionID,
		RulesetID:       req.RulesetID,
		StagingRetained: req.KeepStaging,
		StagingTTLHours: int(e.mgr.TTL().Hours()),
	}
	log.Printf("execute id=%s ruleset=%s phase=%s", executionID, req.RulesetID, PhaseStarted)

	// Fail fast before any staging table exists.
	if err := e.store.HealthCheck(ctx); err != nil {
		return nil, reconerr.Newf(reconerr.CodeConnectivity, "landing store health check: %w", err)
	}

	rs, err := e.rules.Get(ctx, req.RulesetID)
	if err != nil {
		var nf *rules.ErrNotFound
		if errors.As(err, &nf) {
			return nil, reconerr.Newf(reconerr.CodeConfiguration, "ruleset %s not found", req.RulesetID)
		}
		return nil, reconerr.Newf(reconerr.CodeConfiguration, "load ruleset %s: %w", req.RulesetID, err)
	}

	// Extraction. created accumulates every staging table the run owns so a
	// later failure can resolve them.
	var created []string
	extractStart := time.Now()
	srcRes, tgtRes, err := e.extractBothSides(ctx, req, rs, executionID, job)
	if srcRes != nil {
		for _, t := range srcRes.Tables {
			created = append(created, t.TableName)
		}
	}
	if tgtRes != nil {
		for _, t := range tgtRes.Tables {
			created = append(created, t.TableName)
		}
	}
	if err != nil {
		e.resolveStaging(ctx, created, req.KeepStaging)
		return nil, err
	}
	res.ExtractionTimeMs = time.Since(extractStart).Milliseconds()
	metrics.RecordRows(job, "staged_source", srcRes.RowCount())
	metrics.RecordRows(job, "staged_target", tgtRes.RowCount())

	// Reconciliation: one aggregate query inside the landing store.
	reconStart := time.Now()
	k, err := e.reconcile(ctx, rs, srcRes.Primary(), tgtRes.Primary())
	metrics.RecordPhase(job, "reconciliation", err, time.Since(reconStart))
	if err != nil {
		e.resolveStaging(ctx, created, req.KeepStaging)
		return nil, err
	}
	res.KPIs = *k
	res.ReconciliationTimeMs = time.Since(reconStart).Milliseconds()
	log.Printf("execute id=%s phase=%s matched=%d rcr=%.2f dqcs=%.3f rei=%.2f",
		executionID, PhaseReconciled, k.MatchedCount, k.RCR, k.DQCS, k.REI)
	metrics.RecordRows(job, "matched", k.MatchedCount)
	metrics.RecordRows(job, "unmatched_source", k.UnmatchedSourceCount)
	metrics.RecordRows(job, "unmatched_target", k.UnmatchedTargetCount)

	// Staging details are captured before any drop so the result reflects
	// what the run actually produced.
	res.SourceStaging = e.mgr.Info(ctx, srcRes.Primary().TableName)
	res.TargetStaging = e.mgr.Info(ctx, tgtRes.Primary().TableName)
	res.TotalTimeMs = time.Since(start).Milliseconds()

	// Result storage is advisory; only a fatal code may abort the run here.
	if err := e.storeResult(ctx, req, res, executionID, job); reconerr.Fatal(err) {
		e.resolveStaging(ctx, created, req.KeepStaging)
		return nil, err
	}

	e.resolveStaging(ctx, created, req.KeepStaging)
	res.TotalTimeMs = time.Since(start).Milliseconds()
	log.Printf("execute id=%s phase=%s elapsed=%dms retained=%v",
		executionID, PhaseDone, res.TotalTimeMs, req.KeepStaging)
	return res, nil
}

// extractBothSides stages the two sides, sequentially by default or
// concurrently when parallel mode is on. The sides touch independent
// external systems and independent staging tables, so concurrent staging
// needs no coordination beyond the shared landing pool.
func (e *Executor) extractBothSides(
	ctx context.Context,
	req Request,
	rs *rules.RuleSet,
	executionID, job string,
) (srcRes, tgtRes *extract.Result, err error) {
	if !e.parallel {
		t0 := time.Now()
		srcRes, err = e.ext.ExtractToStaging(ctx, req.Source, rs, executionID, rules.SideSource, req.Limit)
		metrics.RecordPhase(job, "source_extraction", err, time.Since(t0))
		if err != nil {
			return nil, nil, err
		}
		log.Printf("execute id=%s phase=%s rows=%d", executionID, PhaseSourceExtracted, srcRes.RowCount())

		t0 = time.Now()
		tgtRes, err = e.ext.ExtractToStaging(ctx, req.Target, rs, executionID, rules.SideTarget, req.Limit)
		metrics.RecordPhase(job, "target_extraction", err, time.Since(t0))
		if err != nil {
			return srcRes, nil, err
		}
		log.Printf("execute id=%s phase=%s rows=%d", executionID, PhaseTargetExtracted, tgtRes.RowCount())
		return srcRes, tgtRes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t0 := time.Now()
		r, err := e.ext.ExtractToStaging(gctx, req.Source, rs, executionID, rules.SideSource, req.Limit)
		metrics.RecordPhase(job, "source_extraction", err, time.Since(t0))
		srcRes = r
		return err
	})
	g.Go(func() error {
		t0 := time.Now()
		r, err := e.ext.ExtractToStaging(gctx, req.Target, rs, executionID, rules.SideTarget, req.Limit)
		metrics.RecordPhase(job, "target_extraction", err, time.Since(t0))
		tgtRes = r
		return err
	})
	if err := g.Wait(); err != nil {
		return srcRes, tgtRes, err
	}
	log.Printf("execute id=%s phase=%s src_rows=%d tgt_rows=%d parallel=true",
		executionID, PhaseTargetExtracted, srcRes.RowCount(), tgtRes.RowCount())
	return srcRes, tgtRes, nil
}

// storeResult forwards the execution summary to the document store when
// requested. Failures come back coded W_STORAGE so callers treat them as
// warnings.
func (e *Executor) storeResult(ctx context.Context, req Request, res *Result, executionID, job string) error {
	if !req.StoreResult || e.docs == nil {
		return nil
	}
	start := time.Now()
	id, err := e.docs.Insert(ctx, summarize(res))
	metrics.RecordPhase(job, "storage", err, time.Since(start))
	if err != nil {
		warn := reconerr.Newf(reconerr.CodeStorageWarning, "store result: %w", err)
		log.Printf("execute id=%s phase=%s %v", executionID, PhaseStored, warn)
		return warn
	}
	res.StoredDocumentID = id
	log.Printf("execute id=%s phase=%s document=%s", executionID, PhaseStored, id)
	return nil
}

// reconcile compiles the ruleset against the primary staging pair and runs
// the single aggregate query.
func (e *Executor) reconcile(ctx context.Context, rs *rules.RuleSet, src, tgt *extract.StagedTable) (*queries.KPIs, error) {
	if src == nil || tgt == nil {
		return nil, reconerr.New(reconerr.CodeQuery, fmt.Errorf("missing staged tables"))
	}
	groups, err := queries.Compile(rs, src.SourceRef, tgt.SourceRef)
	if err != nil {
		return nil, reconerr.Newf(reconerr.CodeConfiguration, "compile ruleset %s: %w", rs.ID, err)
	}
	sql, err := queries.BuildReconciliationQuery(e.mgr.Schema(), src.TableName, tgt.TableName, groups)
	if err != nil {
		return nil, reconerr.Newf(reconerr.CodeQuery, "build reconciliation query: %w", err)
	}
	k, err := queries.ScanKPIs(e.store.QueryRow(ctx, sql))
	if err != nil {
		return nil, reconerr.Newf(reconerr.CodeQuery, "reconciliation query: %w", err)
	}
	return k, nil
}

// resolveStaging drops the run's staging tables unless retention was
// requested. Drops are best-effort; a failed drop is logged and the TTL
// sweep remains the backstop.
func (e *Executor) resolveStaging(ctx context.Context, tables []string, keep bool) {
	if keep {
		return
	}
	for _, t := range tables {
		if err := e.mgr.Drop(ctx, t); err != nil {
			log.Printf("execute: drop staging table %s: %v", t, err)
		}
	}
}
