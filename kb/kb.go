// Package kb ingests semi-structured HMO benefits documents (HTML) into
// atomic, filterable chunks, embeds them once per build, and serves
// cosine-similarity retrieval with fund/tier biasing. The index is
// immutable after construction and safe for concurrent searches.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nivkeidan/hmochat/llm"
	"github.com/nivkeidan/hmochat/store"
)

// Config controls KB construction and retrieval.
type Config struct {
	// KBDir is scanned recursively for .html files.
	KBDir string
	// CacheDir holds the fingerprinted build cache.
	CacheDir string
	// EmbeddingsDeployment names the embedding model; it is part of the
	// cache fingerprint so a deployment change forces a rebuild.
	EmbeddingsDeployment string
	// BatchSize for embedding calls. Default 64.
	BatchSize int
	// TopK default for Search when the caller passes 0. Default 6.
	TopK int
	// HMOMismatchBias demotes chunks tagged with a different fund than
	// the searcher's. Default 0.75.
	HMOMismatchBias float64
	// TierMatchBias promotes chunks tagged with the searcher's tier.
	// Default 1.08.
	TierMatchBias float64
}

func (c *Config) applyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = ".kb_cache"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.TopK <= 0 {
		c.TopK = 6
	}
	if c.HMOMismatchBias <= 0 {
		c.HMOMismatchBias = 0.75
	}
	if c.TierMatchBias <= 0 {
		c.TierMatchBias = 1.08
	}
}

// KB holds one immutable build: parallel chunk and vector slices plus
// the fingerprint that named its cache file.
type KB struct {
	cfg         Config
	embedder    llm.EmbeddingsClient
	audit       *store.Store // optional query audit log
	chunks      []Chunk
	vectors     [][]float32
	fingerprint string
}

// Option configures optional KB collaborators.
type Option func(*KB)

// WithAuditStore attaches a store that records every search with its
// query embedding. Logging is best-effort and never fails a search.
func WithAuditStore(s *store.Store) Option {
	return func(k *KB) { k.audit = s }
}

// New builds or reloads the knowledge base. If a cache file for the
// current fingerprint exists and matches, parsing and embedding are
// skipped entirely.
func New(ctx context.Context, embedder llm.EmbeddingsClient, cfg Config, opts ...Option) (*KB, error) {
	cfg.applyDefaults()

	k := &KB{cfg: cfg, embedder: embedder}
	for _, opt := range opts {
		opt(k)
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	manifest := buildManifest(cfg.KBDir)
	k.fingerprint = fingerprint(cfg.EmbeddingsDeployment, manifest)
	cachePath := filepath.Join(cfg.CacheDir, "kb_"+k.fingerprint+".bin")

	if payload, err := loadCache(cachePath, cfg.EmbeddingsDeployment); err == nil {
		k.chunks = payload.Chunks
		k.vectors = payload.Vectors
		slog.Info("kb: loaded cache",
			"fingerprint", k.fingerprint,
			"chunks", len(k.chunks),
		)
		return k, nil
	} else if !os.IsNotExist(err) {
		slog.Warn("kb: discarding unusable cache", "path", cachePath, "error", err)
	}

	if err := k.build(ctx, manifest, cachePath); err != nil {
		return nil, err
	}
	return k, nil
}

// build parses every manifest file, embeds all chunks in one pass and
// persists the cache. An embedding failure aborts the build; no partial
// cache is written.
func (k *KB) build(ctx context.Context, manifest []ManifestEntry, cachePath string) error {
	for _, m := range manifest {
		raw, err := os.ReadFile(m.Path)
		if err != nil {
			slog.Warn("kb: skipping unreadable file", "path", m.Path, "error", err)
			continue
		}
		chunks, err := extractChunks(m.Path, string(raw))
		if err != nil {
			slog.Warn("kb: skipping unparseable file", "path", m.Path, "error", err)
			continue
		}
		k.chunks = append(k.chunks, chunks...)
	}

	if len(k.chunks) > 0 {
		payloads := make([]string, len(k.chunks))
		for i, c := range k.chunks {
			payloads[i] = c.embeddingPayload()
		}
		vectors, err := k.embedder.EmbedTexts(ctx, payloads, k.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("embedding kb chunks: %w", err)
		}
		k.vectors = vectors
	}

	if err := saveCache(cachePath, cachePayload{
		Version:              cacheVersion,
		EmbeddingsDeployment: k.cfg.EmbeddingsDeployment,
		Manifest:             manifest,
		Chunks:               k.chunks,
		Vectors:              k.vectors,
	}); err != nil {
		return err
	}

	slog.Info("kb: built index",
		"fingerprint", k.fingerprint,
		"files", len(manifest),
		"chunks", len(k.chunks),
	)
	return nil
}

// Fingerprint identifies this build.
func (k *KB) Fingerprint() string { return k.fingerprint }

// Len is the number of indexed chunks.
func (k *KB) Len() int { return len(k.chunks) }
