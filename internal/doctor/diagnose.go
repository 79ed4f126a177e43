// Package doctor runs operational health checks for the memory engine and
// its collaborators.
package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/daverage/strata/internal/archive"
	"github.com/daverage/strata/internal/config"
	"github.com/daverage/strata/internal/embedding"
	"github.com/daverage/strata/internal/memory"
)

const probeTimeout = 5 * time.Second

// Diagnostics holds diagnostic information.
type Diagnostics struct {
	Checks []CheckResult `json:"checks"`
	Issues []string      `json:"issues"`
	Status string        `json:"status"`
}

// CheckResult represents the result of a single check.
type CheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "fail", "warn"
	Message  string `json:"message"`
	Severity string `json:"severity"` // "info", "warning", "error"
}

// Runner runs diagnostic checks.
type Runner struct {
	cfg      *config.Config
	db       *archive.DB
	provider embedding.Provider
}

// NewRunner creates a diagnostic runner. db and provider may be nil when the
// corresponding subsystem is disabled.
func NewRunner(cfg *config.Config, db *archive.DB, provider embedding.Provider) *Runner {
	return &Runner{cfg: cfg, db: db, provider: provider}
}

// RunAll runs every check and aggregates the outcome.
func (d *Runner) RunAll() *Diagnostics {
	var results []CheckResult

	results = append(results, d.checkConfiguration()...)
	results = append(results, d.checkArchive()...)
	results = append(results, d.checkProvider()...)
	results = append(results, d.checkEngine()...)

	var issues []string
	for _, result := range results {
		if result.Status == "fail" {
			issues = append(issues, result.Message)
		}
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}

	return &Diagnostics{
		Checks: results,
		Issues: issues,
		Status: status,
	}
}

func (d *Runner) checkConfiguration() []CheckResult {
	if err := d.cfg.Validate(); err != nil {
		return []CheckResult{{
			Name:     "configuration_validation",
			Status:   "fail",
			Message:  fmt.Sprintf("Configuration validation failed: %v", err),
			Severity: "error",
		}}
	}
	return []CheckResult{{
		Name:     "configuration_validation",
		Status:   "pass",
		Message:  "Configuration is valid",
		Severity: "info",
	}}
}

func (d *Runner) checkArchive() []CheckResult {
	if d.db == nil {
		return []CheckResult{{
			Name:     "archive_connectivity",
			Status:   "warn",
			Message:  "Archive is disabled; snapshots and journal are unavailable",
			Severity: "warning",
		}}
	}

	var results []CheckResult
	if err := d.db.Conn().Ping(); err != nil {
		results = append(results, CheckResult{
			Name:     "archive_connectivity",
			Status:   "fail",
			Message:  fmt.Sprintf("Cannot connect to archive database: %v", err),
			Severity: "error",
		})
		return results
	}
	results = append(results, CheckResult{
		Name:     "archive_connectivity",
		Status:   "pass",
		Message:  "Archive database connection successful",
		Severity: "info",
	})

	if _, err := d.db.Conn().Exec("PRAGMA integrity_check"); err != nil {
		results = append(results, CheckResult{
			Name:     "archive_integrity",
			Status:   "fail",
			Message:  fmt.Sprintf("Archive integrity check failed: %v", err),
			Severity: "error",
		})
	} else {
		results = append(results, CheckResult{
			Name:     "archive_integrity",
			Status:   "pass",
			Message:  "Archive integrity check passed",
			Severity: "info",
		})
	}
	return results
}

func (d *Runner) checkProvider() []CheckResult {
	if d.provider == nil {
		return []CheckResult{{
			Name:     "embedding_provider",
			Status:   "warn",
			Message:  "No embedding provider configured; semantic search runs lexical-only",
			Severity: "warning",
		}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	vec, err := d.provider.Embed(ctx, "diagnostic probe")
	if err != nil {
		return []CheckResult{{
			Name:     "embedding_provider",
			Status:   "warn",
			Message:  fmt.Sprintf("Embedding provider %q unavailable, searches will degrade: %v", d.provider.Name(), err),
			Severity: "warning",
		}}
	}
	return []CheckResult{{
		Name:     "embedding_provider",
		Status:   "pass",
		Message:  fmt.Sprintf("Embedding provider %q healthy (%d dimensions)", d.provider.Name(), len(vec)),
		Severity: "info",
	}}
}

// checkEngine smoke-tests a throwaway engine with the configured options so
// the live engine's state stays untouched.
func (d *Runner) checkEngine() []CheckResult {
	eng, err := memory.NewEngine(d.cfg.EngineOptions(), nil, nil, nil)
	if err != nil {
		return []CheckResult{{
			Name:     "engine_construction",
			Status:   "fail",
			Message:  fmt.Sprintf("Cannot construct engine from configuration: %v", err),
			Severity: "error",
		}}
	}

	probe := memory.NewWorking("diagnostic item", 1.0, 0.0)
	probe.Source = "doctor"
	id, err := eng.Store(probe)
	if err != nil {
		return []CheckResult{{
			Name:     "engine_store",
			Status:   "fail",
			Message:  fmt.Sprintf("Engine store failed: %v", err),
			Severity: "error",
		}}
	}
	if _, err := eng.Retrieve(id); err != nil {
		return []CheckResult{{
			Name:     "engine_retrieve",
			Status:   "fail",
			Message:  fmt.Sprintf("Engine retrieve failed: %v", err),
			Severity: "error",
		}}
	}
	return []CheckResult{{
		Name:     "engine_roundtrip",
		Status:   "pass",
		Message:  "Engine store/retrieve roundtrip successful",
		Severity: "info",
	}}
}

// PrintReport prints a formatted diagnostic report.
func (d *Diagnostics) PrintReport() {
	fmt.Printf("=== strata diagnostic report ===\n")
	fmt.Printf("Status: %s\n\n", d.Status)

	if len(d.Issues) > 0 {
		fmt.Printf("Issues Found:\n")
		for i, issue := range d.Issues {
			fmt.Printf("  %d. %s\n", i+1, issue)
		}
		fmt.Println()
	}

	fmt.Printf("Detailed Checks:\n")
	for _, check := range d.Checks {
		statusSymbol := "✓"
		if check.Status == "fail" {
			statusSymbol = "✗"
		} else if check.Status == "warn" {
			statusSymbol = "!"
		}

		fmt.Printf("  %s %s: %s\n", statusSymbol, check.Name, check.Message)
	}
}
