package checks

import (
	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
)

// Checker names; they double as configuration keys.
const (
	LinkName      = "Link"
	PhoneName     = "Phone"
	UnifiedAIName = "UnifiedAI"
)

// base carries the name and per-run settings shared by every checker.
type base struct {
	name     string
	settings config.Config
}

// Name implements audit.Checker.
func (b base) Name() string { return b.name }

// Enabled implements audit.Checker.
func (b base) Enabled() bool { return b.settings.CheckEnabled(b.name) }

func (b base) severity() audit.Severity { return b.settings.CheckSeverity(b.name) }

func (b base) result(page audit.Page, check string, status audit.Status, details string) audit.CheckResult {
	return audit.CheckResult{
		PageURL:   page.URL,
		CheckName: check,
		Status:    status,
		Details:   details,
		Severity:  b.severity(),
	}
}

// uniqueOrdered drops repeats while keeping first-seen order.
func uniqueOrdered(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
