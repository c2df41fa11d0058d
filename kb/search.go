package kb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/nivkeidan/hmochat/model"
	"github.com/nivkeidan/hmochat/store"
)

// Search embeds the query once and ranks every chunk by biased cosine
// similarity. A chunk carrying a different fund than hmo is demoted; a
// chunk tagged with tier is promoted. Cross-fund chunks (empty HMO) are
// never demoted, so contacts and blurbs stay rankable for everyone.
// Ties keep insertion order. An empty index returns nil without calling
// the embedder.
func (k *KB) Search(ctx context.Context, query string, hmo model.HMO, tier model.Tier, topK int) ([]Chunk, error) {
	if len(k.chunks) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = k.cfg.TopK
	}

	vecs, err := k.embedder.EmbedTexts(ctx, []string{query}, 1)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qv := vecs[0]

	type scored struct {
		score float64
		idx   int
	}
	ranked := make([]scored, len(k.chunks))
	for i, ch := range k.chunks {
		score := cosine(qv, k.vectors[i])
		if hmo != "" && ch.HMO != "" && ch.HMO != hmo {
			score *= k.cfg.HMOMismatchBias
		}
		if tier != "" && ch.hasTier(string(tier)) {
			score *= k.cfg.TierMatchBias
		}
		ranked[i] = scored{score: score, idx: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]Chunk, topK)
	for i := 0; i < topK; i++ {
		out[i] = k.chunks[ranked[i].idx]
	}

	k.logSearch(ctx, query, hmo, tier, topK, qv, out)
	return out, nil
}

// logSearch records the query with its embedding in the audit store,
// when one is attached. Best-effort.
func (k *KB) logSearch(ctx context.Context, query string, hmo model.HMO, tier model.Tier, topK int, qv []float32, results []Chunk) {
	if k.audit == nil {
		return
	}
	uris := make([]string, len(results))
	for i, c := range results {
		uris[i] = c.SourceURI
	}
	err := k.audit.LogQuery(ctx, store.QueryRecord{
		Query:      query,
		HMO:        string(hmo),
		Tier:       string(tier),
		TopK:       topK,
		SourceURIs: uris,
		Embedding:  qv,
	})
	if err != nil {
		slog.Warn("kb: query audit log failed", "error", err)
	}
}

// cosine computes cosine similarity with a zero-norm guard.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 {
		na = 1
	}
	if nb == 0 {
		nb = 1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
