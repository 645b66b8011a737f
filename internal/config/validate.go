package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the fields a given run mode depends on. Modes map to the
// top-level commands: analyze, estimate, quote, rates, serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 32 {
			problems = append(problems, "pipeline.concurrency must be between 1 and 32")
		}
		if c.Pipeline.MaxDocumentBytes <= 0 {
			problems = append(problems, "pipeline.max_document_bytes must be > 0")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.License.OrgID == "" {
			problems = append(problems, "license.org_id is required")
		}
	}

	switch mode {
	case "analyze":
		check()
	case "estimate", "quote":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Estimate.MarkupPct < 0 {
			problems = append(problems, "estimate.markup_pct must be >= 0")
		}
		if c.Estimate.OverheadPct < 0 || c.Estimate.ProfitPct < 0 {
			problems = append(problems, "estimate.overhead_pct and estimate.profit_pct must be >= 0")
		}
	case "rates":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "serve":
		check()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
