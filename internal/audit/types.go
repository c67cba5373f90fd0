// Package audit defines the core types shared across the audit pipeline.
package audit

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Status is the outcome class of a single check.
type Status string

// Check statuses rendered into reports.
const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Severity tags a result independently of its status.
type Severity string

// Supported severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity maps configuration text onto a Severity, defaulting to medium.
func ParseSeverity(raw string) Severity {
	switch Severity(raw) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(raw)
	default:
		return SeverityMedium
	}
}

// RunStatus represents the lifecycle state of an audit run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusEmpty     RunStatus = "empty"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusEmpty, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Page is one fetched document. It is not modified after the fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Text       string
	HTML       string
	Doc        *goquery.Document
}

// CheckResult is a single finding produced by a Checker.
type CheckResult struct {
	PageURL   string   `json:"page_url"`
	CheckName string   `json:"check_name"`
	Status    Status   `json:"status"`
	Details   string   `json:"details"`
	Severity  Severity `json:"severity"`
}

// BasicAuth holds the optional credential for the audited site.
type BasicAuth struct {
	Username string
	Password string
}

// Usable reports whether both halves of the credential are present.
func (a *BasicAuth) Usable() bool {
	return a != nil && a.Username != "" && a.Password != ""
}

// NGRule pairs a discouraged expression with its preferred replacement.
type NGRule struct {
	Bad  string `json:"bad" mapstructure:"bad"`
	Good string `json:"good" mapstructure:"good"`
}

// Profile carries the site-specific reference data for one run.
type Profile struct {
	StartURL   string            `json:"start_url" mapstructure:"start_url"`
	ClinicName string            `json:"clinic_name" mapstructure:"clinic_name"`
	Phone      string            `json:"phone" mapstructure:"phone"`
	NGRules    []NGRule          `json:"ng_rules" mapstructure:"ng_rules"`
	MasterData map[string]string `json:"master_data" mapstructure:"master_data"`
}

// Clone returns a deep copy so per-run edits never leak into shared values.
func (p Profile) Clone() Profile {
	cp := p
	if p.NGRules != nil {
		cp.NGRules = append([]NGRule(nil), p.NGRules...)
	}
	if p.MasterData != nil {
		cp.MasterData = make(map[string]string, len(p.MasterData))
		for k, v := range p.MasterData {
			cp.MasterData[k] = v
		}
	}
	return cp
}

// Request describes one audit run. Exactly one of StartURL or URLs drives target resolution;
// a non-empty URLs list wins.
type Request struct {
	RunID    string
	StartURL string
	URLs     []string
	Profile  Profile
	Auth     *BasicAuth
}

// Summary counts results per status.
type Summary struct {
	OK      int `json:"ok"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
}

// Summarize tallies results by status.
func Summarize(results []CheckResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			s.OK++
		case StatusWarning:
			s.Warning++
		case StatusError:
			s.Error++
		}
	}
	return s
}

// Outcome is what one run produced. Empty is set when no page could be fetched.
type Outcome struct {
	RunID       string        `json:"run_id"`
	Results     []CheckResult `json:"results"`
	CheckedURLs []string      `json:"checked_urls"`
	Summary     Summary       `json:"summary"`
	Empty       bool          `json:"empty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// RunRecord is the persisted view of a run.
type RunRecord struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	ClinicName string     `json:"clinic_name"`
	StartURL   string     `json:"start_url,omitempty"`
	URLs       []string   `json:"urls,omitempty"`
	Submitted  time.Time  `json:"submitted_at"`
	Started    *time.Time `json:"started_at,omitempty"`
	Finished   *time.Time `json:"finished_at,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	ReportURI  string     `json:"report_uri,omitempty"`
	Summary    Summary    `json:"summary"`
}
