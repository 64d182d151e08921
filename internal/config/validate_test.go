package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func TestValidateValidDefaults(t *testing.T) {
	t.Parallel()

	if issues := Validate(Default()); len(issues) != 0 {
		t.Fatalf("Validate(Default()) = %+v, want no issues", issues)
	}
}

func TestValidateLandingErrors(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Landing.Host = "  "
	c.Landing.Database = ""
	c.Landing.Port = 70000

	issues := Validate(c)
	if !hasIssue(t, issues, SeverityError, "landing.host", "must not be empty") {
		t.Errorf("missing landing.host error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "landing.database", "must not be empty") {
		t.Errorf("missing landing.database error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "landing.port", "outside valid range") {
		t.Errorf("missing landing.port error; got %+v", issues)
	}
}

func TestValidateLandingDisabled(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Landing.Enabled = false
	if !hasIssue(t, Validate(c), SeverityError, "landing.enabled", "cannot run without a landing store") {
		t.Fatal("missing landing.enabled error")
	}
}

func TestValidateWarnings(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Staging.TTLHours = 0
	c.Extract.BatchSize = -5

	issues := Validate(c)
	if !hasIssue(t, issues, SeverityWarning, "staging.ttl_hours", "default will be used") {
		t.Errorf("missing ttl warning; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "extract.batch_size", "default will be used") {
		t.Errorf("missing batch size warning; got %+v", issues)
	}
}

func TestValidateMetrics(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Metrics.Backend = "graphite"
	if !hasIssue(t, Validate(c), SeverityWarning, "metrics.backend", "unknown backend") {
		t.Fatal("missing unknown backend warning")
	}

	c = Default()
	c.Metrics.Backend = "pushgateway"
	c.Metrics.PushgatewayURL = ""
	if !hasIssue(t, Validate(c), SeverityError, "metrics.pushgateway_url", "no URL configured") {
		t.Fatal("missing pushgateway URL error")
	}

	c = Default()
	c.Metrics.Backend = "datadog"
	c.Metrics.DatadogAddr = ""
	if !hasIssue(t, Validate(c), SeverityError, "metrics.datadog_addr", "no agent address") {
		t.Fatal("missing datadog address error")
	}
}
