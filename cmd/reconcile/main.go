package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"reconcile/internal/config"
	"reconcile/internal/docstore"
	"reconcile/internal/executor"
	"reconcile/internal/extract"
	"reconcile/internal/landing"
	"reconcile/internal/metrics"
	"reconcile/internal/metrics/datadog"
	"reconcile/internal/metrics/prompush"
	"reconcile/internal/rules"
	"reconcile/internal/source"
	"reconcile/internal/staging"

	// register all vendor dialects with the source registry.
	// connection info picks which to use but we build in support for all of them.
	_ "reconcile/internal/source/all"
)

// main is the entry point for the reconcile binary. It loads configuration,
// optionally initializes a metrics backend, wires the pipeline against the
// landing store, and runs one reconciliation (or the staging sweep).
func main() {
	var (
		cfgPath           string
		rulesetID         string
		sourcePath        string
		targetPath        string
		limit             int
		keepStaging       bool
		storeResult       bool
		sweep             bool
		validate          bool
		metricsBackendFlg string
		pushGatewayURLFlg string
	)

	flag.StringVar(&cfgPath, "config", "", "config JSON path (optional; env overlays apply either way)")
	flag.StringVar(&rulesetID, "ruleset", "", "ruleset id to execute")
	flag.StringVar(&sourcePath, "source", "", "source connection JSON path")
	flag.StringVar(&targetPath, "target", "", "target connection JSON path")
	flag.IntVar(&limit, "limit", 0, "max rows to extract per table (0 = unlimited)")
	flag.BoolVar(&keepStaging, "keep-staging", false, "retain staging tables after the run")
	flag.BoolVar(&storeResult, "store", false, "store the execution summary in the document store")
	flag.BoolVar(&sweep, "sweep", false, "drop expired staging tables and exit")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if metricsBackendFlg != "" {
		cfg.Metrics.Backend = metricsBackendFlg
	}
	if pushGatewayURLFlg != "" {
		cfg.Metrics.PushgatewayURL = pushGatewayURLFlg
	}

	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	setupMetrics(cfg, rulesetID, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()

	store, err := landing.New(ctx, cfg.Landing.DSN())
	if err != nil {
		fatalf("landing store: %v", err)
	}
	defer store.Close()

	mgr := staging.NewManager(store, cfg.Landing.Schema, cfg.Staging.TTL())
	if err := mgr.Bootstrap(ctx); err != nil {
		fatalf("%v", err)
	}

	if sweep {
		dropped, err := mgr.SweepExpired(ctx, 0)
		if err != nil {
			fatalf("sweep: %v", err)
		}
		log.Printf("sweep: dropped %d expired staging tables", dropped)
		return
	}

	if rulesetID == "" || sourcePath == "" || targetPath == "" {
		fatalf("-ruleset, -source and -target are required (or use -sweep / -validate)")
	}

	srcConn, err := readConnInfo(sourcePath)
	if err != nil {
		fatalf("source connection: %v", err)
	}
	tgtConn, err := readConnInfo(targetPath)
	if err != nil {
		fatalf("target connection: %v", err)
	}

	var docs docstore.Store
	if storeResult {
		if cfg.Docstore.URI == "" {
			fatalf("-store requires a document store URI (config docstore.uri or MONGO_URI)")
		}
		mongo, err := docstore.NewMongo(ctx, cfg.Docstore.URI, cfg.Docstore.Database, cfg.Docstore.Collection)
		if err != nil {
			fatalf("document store: %v", err)
		}
		defer mongo.Close(ctx)
		docs = mongo
	}

	ext := extract.New(store, mgr, extract.Options{
		BatchSize: cfg.Extract.BatchSize,
		BulkLoad:  cfg.Extract.BulkLoad,
	})
	ruleStore := rules.NewFileStore(cfg.Rules.Dir)
	exec := executor.New(store, ext, mgr, ruleStore, docs, cfg.Extract.Parallel)

	start := time.Now()
	res, err := exec.Execute(ctx, executor.Request{
		RulesetID:   rulesetID,
		Source:      srcConn,
		Target:      tgtConn,
		Limit:       limit,
		KeepStaging: keepStaging || cfg.Staging.KeepDefault,
		StoreResult: storeResult,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// setupMetrics installs the configured metrics backend; on any failure the
// nop backend stays in place.
func setupMetrics(cfg config.Config, job string, verbose bool) {
	if job == "" {
		job = "reconcile"
	}
	switch cfg.Metrics.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(job, cfg.Metrics.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%v job=%v", cfg.Metrics.PushgatewayURL, job)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: cfg.Metrics.DatadogAddr, Namespace: "recon."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%v", cfg.Metrics.DatadogAddr)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", cfg.Metrics.Backend)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", cfg.Metrics.Backend)
	}
}

// readConnInfo decodes a connection description from a JSON file.
func readConnInfo(path string) (source.ConnInfo, error) {
	var ci source.ConnInfo
	f, err := os.Open(path)
	if err != nil {
		return ci, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&ci); err != nil {
		return ci, fmt.Errorf("decode %s: %w", path, err)
	}
	if ci.Vendor == "" {
		return ci, fmt.Errorf("%s: db_type is required", path)
	}
	return ci, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
