package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/prelaunch-audit/internal/metrics"
)

const defaultMaxWorkers = 5

// RunnerConfig sizes the per-phase worker pools.
type RunnerConfig struct {
	MaxWorkers int
}

// Runner drives one audit run: resolve targets, fetch, check, aggregate.
type Runner struct {
	cfg     RunnerConfig
	crawler Crawler
	fetcher Fetcher
	suites  SuiteBuilder
	clock   Clock
	logger  *zap.Logger
}

// NewRunner wires the pipeline collaborators.
func NewRunner(
	cfg RunnerConfig,
	crawler Crawler,
	fetcher Fetcher,
	suites SuiteBuilder,
	clock Clock,
	logger *zap.Logger,
) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Runner{
		cfg:     cfg,
		crawler: crawler,
		fetcher: fetcher,
		suites:  suites,
		clock:   clock,
		logger:  logger,
	}
}

// Run executes the request. A run that fetches no pages returns an Outcome with Empty set
// and a nil error; errors are reserved for invalid requests, suite construction and cancellation.
func (r *Runner) Run(ctx context.Context, request Request, observer Observer) (Outcome, error) {
	if request.StartURL == "" && len(request.URLs) == 0 {
		return Outcome{}, ErrNoTargets
	}
	if observer == nil {
		observer = NopObserver{}
	}
	logger := r.logger.With(zap.String("run_id", request.RunID))
	outcome := Outcome{RunID: request.RunID, StartedAt: r.clock.Now()}

	pages, err := r.resolvePages(ctx, request, observer)
	if err != nil {
		return Outcome{}, err
	}
	if len(pages) == 0 {
		logger.Warn("no pages fetched; ending run early")
		outcome.Empty = true
		outcome.FinishedAt = r.clock.Now()
		observer.OnSummary(outcome)
		return outcome, nil
	}

	suite, err := r.suites.Build(request)
	if err != nil {
		return Outcome{}, fmt.Errorf("build checker suite: %w", err)
	}

	outcome.CheckedURLs = sortedKeys(pages)
	results := r.checkAll(ctx, request.RunID, outcome.CheckedURLs, pages, suite, observer)
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("check phase canceled: %w", err)
	}
	orderByPage(results, outcome.CheckedURLs)

	outcome.Results = results
	outcome.Summary = Summarize(results)
	outcome.FinishedAt = r.clock.Now()
	logger.Info("run finished",
		zap.Int("pages", len(outcome.CheckedURLs)),
		zap.Int("ok", outcome.Summary.OK),
		zap.Int("warning", outcome.Summary.Warning),
		zap.Int("error", outcome.Summary.Error),
	)
	observer.OnSummary(outcome)
	return outcome, nil
}

func (r *Runner) resolvePages(ctx context.Context, request Request, observer Observer) (map[string]Page, error) {
	if len(request.URLs) > 0 {
		targets := r.crawler.Filter(request.URLs)
		pages := r.fetchAll(ctx, request, targets, observer)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch phase canceled: %w", err)
		}
		return pages, nil
	}
	tick := func(done, total int) {
		observer.OnProgress(Progress{RunID: request.RunID, Phase: PhaseFetch, Done: done, Total: total})
	}
	pages, err := r.crawler.Crawl(ctx, request.StartURL, request.Auth, tick)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", request.StartURL, err)
	}
	return pages, nil
}

// fetchAll runs one Fetch per target on a bounded pool. Failed fetches are dropped.
func (r *Runner) fetchAll(ctx context.Context, request Request, targets []string, observer Observer) map[string]Page {
	var (
		mu    sync.Mutex
		done  int
		pages = make(map[string]Page, len(targets))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxWorkers)
	for _, target := range targets {
		g.Go(func() error {
			page, err := r.fetcher.Fetch(gctx, FetchRequest{URL: target, Auth: request.Auth})
			if err != nil {
				r.logger.Debug("fetch failed; dropping page", zap.String("url", target), zap.Error(err))
			}
			mu.Lock()
			if err == nil {
				pages[target] = page
			}
			done++
			// Ticks are delivered under the lock so observers see Done increase.
			observer.OnProgress(Progress{RunID: request.RunID, Phase: PhaseFetch, Done: done, Total: len(targets)})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// checkAll runs the suite against every page, one task per page, on a fresh bounded pool.
func (r *Runner) checkAll(
	ctx context.Context,
	runID string,
	urls []string,
	pages map[string]Page,
	suite []Checker,
	observer Observer,
) []CheckResult {
	var (
		mu      sync.Mutex
		done    int
		results []CheckResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxWorkers)
	for _, u := range urls {
		page := pages[u]
		g.Go(func() error {
			pageResults := r.checkPage(gctx, page, suite)
			mu.Lock()
			results = append(results, pageResults...)
			done++
			observer.OnProgress(Progress{RunID: runID, Phase: PhaseCheck, Done: done, Total: len(urls)})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) checkPage(ctx context.Context, page Page, suite []Checker) []CheckResult {
	var out []CheckResult
	for _, checker := range suite {
		if ctx.Err() != nil {
			return out
		}
		if !checker.Enabled() {
			continue
		}
		out = append(out, r.safeCheck(ctx, checker, page)...)
	}
	return out
}

// safeCheck isolates one checker: an error or panic costs only that checker's results.
func (r *Runner) safeCheck(ctx context.Context, checker Checker, page Page) (results []CheckResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("checker panicked",
				zap.String("checker", checker.Name()),
				zap.String("url", page.URL),
				zap.Any("panic", rec),
			)
			metrics.ObserveCheckerFailure(checker.Name())
			results = nil
		}
	}()
	res, err := checker.Check(ctx, page)
	if err != nil {
		r.logger.Warn("checker failed",
			zap.String("checker", checker.Name()),
			zap.String("url", page.URL),
			zap.Error(err),
		)
		metrics.ObserveCheckerFailure(checker.Name())
		return nil
	}
	for _, result := range res {
		metrics.ObserveCheckResult(result.CheckName, string(result.Status))
	}
	return res
}

func sortedKeys(pages map[string]Page) []string {
	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// orderByPage groups results by page so reports read page by page.
func orderByPage(results []CheckResult, urls []string) {
	rank := make(map[string]int, len(urls))
	for i, u := range urls {
		rank[u] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		return rank[results[i].PageURL] < rank[results[j].PageURL]
	})
}

// NopObserver discards progress.
type NopObserver struct{}

// OnProgress implements Observer.
func (NopObserver) OnProgress(Progress) {}

// OnSummary implements Observer.
func (NopObserver) OnSummary(Outcome) {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
