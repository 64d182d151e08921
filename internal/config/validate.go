// Package config provides configuration models and helpers for the
// reconciliation pipeline.
//
// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "landing.host",
// "extract.batch_size"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static validation / linting of a Config.
//
// It does not mutate the config. Instead it returns a slice of Issue
// values; callers decide whether to treat warnings as fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	if c.Landing.Enabled {
		if strings.TrimSpace(c.Landing.Host) == "" {
			issues = append(issues, Issue{SeverityError, "landing.host", "host must not be empty"})
		}
		if strings.TrimSpace(c.Landing.Database) == "" {
			issues = append(issues, Issue{SeverityError, "landing.database", "database must not be empty"})
		}
		if c.Landing.Port < 0 || c.Landing.Port > 65535 {
			issues = append(issues, Issue{SeverityError, "landing.port", "port outside valid range"})
		}
	} else {
		issues = append(issues, Issue{SeverityError, "landing.enabled",
			"the pipeline cannot run without a landing store"})
	}

	if c.Staging.TTLHours <= 0 {
		issues = append(issues, Issue{SeverityWarning, "staging.ttl_hours",
			"non-positive TTL; the 24h default will be used"})
	}

	if c.Extract.BatchSize <= 0 {
		issues = append(issues, Issue{SeverityWarning, "extract.batch_size",
			"non-positive batch size; the 1000-row default will be used"})
	}

	switch c.Metrics.Backend {
	case "", "none", "pushgateway", "datadog":
	default:
		issues = append(issues, Issue{SeverityWarning, "metrics.backend",
			fmt.Sprintf("unknown backend %q; metrics will be disabled", c.Metrics.Backend)})
	}
	if c.Metrics.Backend == "pushgateway" && strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
		issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url",
			"pushgateway backend selected but no URL configured"})
	}
	if c.Metrics.Backend == "datadog" && strings.TrimSpace(c.Metrics.DatadogAddr) == "" {
		issues = append(issues, Issue{SeverityError, "metrics.datadog_addr",
			"datadog backend selected but no agent address configured"})
	}

	return issues
}
