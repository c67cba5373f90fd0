package checks

import (
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/linkcheck"
)

// Builder implements audit.SuiteBuilder.
type Builder struct {
	settings config.Config
	analyzer audit.TextAnalyzer
	clock    audit.Clock
	logger   *zap.Logger
}

// NewBuilder captures the base settings. analyzer may be nil.
func NewBuilder(settings config.Config, analyzer audit.TextAnalyzer, clock audit.Clock, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		settings: settings.Clone(),
		analyzer: analyzer,
		clock:    clock,
		logger:   logger,
	}
}

// Build derives run settings from the request profile and returns a fresh checker set
// with its own link validator, so link outcomes are never shared across runs.
func (b *Builder) Build(request audit.Request) ([]audit.Checker, error) {
	settings := b.settings.WithProfile(request.Profile)
	auth := request.Auth
	if !auth.Usable() {
		auth = settings.SiteAuth()
	}
	logger := b.logger.With(zap.String("run_id", request.RunID))
	validator := linkcheck.NewValidator(linkcheck.Config{
		UserAgent:     settings.Links.UserAgent,
		Timeout:       time.Duration(settings.Links.TimeoutSeconds) * time.Second,
		ExternalDelay: time.Duration(settings.Links.ExternalDelayMs) * time.Millisecond,
		SocialDomains: settings.Links.SocialDomains,
	}, auth, logger)

	return []audit.Checker{
		NewLinkChecker(settings, validator, logger),
		NewPhoneChecker(settings),
		NewUnifiedChecker(settings, b.analyzer, b.clock, logger),
	}, nil
}
