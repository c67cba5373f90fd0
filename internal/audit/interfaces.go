package audit

import (
	"context"
	"io"
	"time"
)

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	URL  string
	Auth *BasicAuth
}

// Fetcher retrieves and parses a single page.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Page, error)
}

// Crawler discovers pages from a seed or narrows an explicit list to crawlable targets.
type Crawler interface {
	Crawl(ctx context.Context, startURL string, auth *BasicAuth, tick func(done, total int)) (map[string]Page, error)
	Filter(urls []string) []string
}

// Checker applies one audit rule to a page.
type Checker interface {
	Name() string
	Enabled() bool
	Check(ctx context.Context, page Page) ([]CheckResult, error)
}

// SuiteBuilder assembles a fresh checker set for each run so per-run state never crosses runs.
type SuiteBuilder interface {
	Build(request Request) ([]Checker, error)
}

// TextAnalyzer is the hosted language model used by the AI-assisted checks.
type TextAnalyzer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Phase names the pipeline stage a progress tick belongs to.
type Phase string

// Pipeline phases.
const (
	PhaseFetch Phase = "fetch"
	PhaseCheck Phase = "check"
)

// Progress is a single (done, total) tick.
type Progress struct {
	RunID string
	Phase Phase
	Done  int
	Total int
}

// Observer receives progress ticks and the final outcome of a run.
type Observer interface {
	OnProgress(p Progress)
	OnSummary(outcome Outcome)
}

// RunStore persists run metadata and results.
type RunStore interface {
	CreateRun(ctx context.Context, run RunRecord) error
	UpdateRun(ctx context.Context, run RunRecord) error
	SaveResults(ctx context.Context, runID string, results []CheckResult) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListResults(ctx context.Context, runID string) ([]CheckResult, error)
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for artifact naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	Request   Request
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for audit runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}
