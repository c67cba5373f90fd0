// Package storage selects the BlobStore reports are archived to and names report objects.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/config"
	"github.com/JakeFAU/prelaunch-audit/internal/storage/gcs"
	"github.com/JakeFAU/prelaunch-audit/internal/storage/local"
	"github.com/JakeFAU/prelaunch-audit/internal/storage/memory"
)

// Supported storage providers.
const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
)

// reportHashLen is how many hex digits of the report digest go into its object key.
const reportHashLen = 16

// NoOpStore discards every object. It is used when archiving is disabled.
type NoOpStore struct{}

// PutObject drains r and returns an empty URI.
func (NoOpStore) PutObject(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", fmt.Errorf("discard object: %w", err)
	}
	return "", nil
}

// New builds the BlobStore named by cfg.Provider. The returned close func releases
// any client the store owns and is never nil.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (audit.BlobStore, func() error, error) {
	noClose := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderNone:
		logger.Info("report archiving disabled")
		return NoOpStore{}, noClose, nil
	case ProviderMemory:
		return memory.NewBlobStore(), noClose, nil
	case ProviderLocal:
		dir := cfg.LocalDir
		if cfg.Prefix != "" {
			dir = path.Join(dir, cfg.Prefix)
		}
		store, err := local.New(local.Config{BaseDir: dir})
		if err != nil {
			return nil, nil, fmt.Errorf("local blob store: %w", err)
		}
		logger.Info("archiving reports locally", zap.String("dir", dir))
		return store, noClose, nil
	case ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("gcs blob store: %w", err)
		}
		logger.Info("archiving reports to gcs", zap.String("bucket", cfg.GCSBucket))
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ReportKey names the object a run's report is stored under:
// reports/<run-id>/<digest-prefix>.xlsx.
func ReportKey(h audit.Hasher, runID string, report []byte) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	digest, err := h.Hash(report)
	if err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	if len(digest) > reportHashLen {
		digest = digest[:reportHashLen]
	}
	return path.Join("reports", runID, digest+".xlsx"), nil
}
