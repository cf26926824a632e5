// Package matcher implements the face match index: a remote top-1
// similarity query with an in-process linear cosine fallback over the
// locally cached embedding table.
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// Provenance records which path produced a match result.
type Provenance string

const (
	ProvenanceRemote Provenance = "remote-index"
	ProvenanceLocal  Provenance = "local-fallback"
)

// Result is the outcome of a best-match query. When Matched is false the
// identity fields are empty and Similarity holds the best sub-threshold
// score seen, for diagnostics only; callers must not treat it as
// identity.
type Result struct {
	Matched    bool
	RollNumber string
	Name       string
	Similarity float64
	Provenance Provenance
}

// Index resolves embeddings to enrolled identities.
type Index struct {
	remoteURL  string
	namespace  string
	threshold  float64
	httpClient *http.Client
	cache      *EmbeddingCache
	logger     *slog.Logger
}

// NewIndex creates an index from settings and a local embedding cache.
// An empty remote URL disables the remote path entirely.
func NewIndex(settings *conf.MatcherSettings, cache *EmbeddingCache) *Index {
	return &Index{
		remoteURL:  settings.RemoteURL,
		namespace:  settings.Namespace,
		threshold:  settings.Threshold,
		httpClient: &http.Client{Timeout: settings.Timeout},
		cache:      cache,
		logger:     logging.ForService("matcher"),
	}
}

// queryRequest is the remote similarity search payload.
type queryRequest struct {
	Namespace string    `json:"namespace"`
	Vector    []float64 `json:"vector"`
	TopK      int       `json:"top_k"`
}

// queryResponse is the remote similarity search result.
type queryResponse struct {
	Matches []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"matches"`
}

// BestMatch returns the best-matching enrolled identity for an
// embedding. The remote index is tried first; any failure or an empty
// response falls back to a full linear cosine scan of the local table.
// A match is accepted only when similarity meets the threshold
// (inclusive); otherwise the result is not an identity. Read-only, no
// shared state is mutated.
func (ix *Index) BestMatch(ctx context.Context, embedding []float64) Result {
	if len(embedding) == 0 {
		return Result{Provenance: ProvenanceLocal}
	}

	if ix.remoteURL != "" {
		result, ok := ix.queryRemote(ctx, embedding)
		if ok {
			return result
		}
	}

	return ix.scanLocal(embedding)
}

// queryRemote runs the top-1 remote query. The second return value is
// false when the caller should fall back to the local scan.
func (ix *Index) queryRemote(ctx context.Context, embedding []float64) (Result, bool) {
	payload, err := json.Marshal(queryRequest{
		Namespace: ix.namespace,
		Vector:    embedding,
		TopK:      1,
	})
	if err != nil {
		ix.logger.Error("failed to encode remote query", "error", err)
		return Result{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ix.remoteURL, bytes.NewReader(payload))
	if err != nil {
		ix.logger.Error("failed to build remote query", "error", err)
		return Result{}, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ix.httpClient.Do(req)
	if err != nil {
		// Remote index errors are never fatal, the local scan covers us.
		ix.logger.Warn("remote index query failed, using local fallback", "error", err)
		return Result{}, false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		ix.logger.Warn("remote index returned non-OK status, using local fallback",
			"status", resp.StatusCode)
		return Result{}, false
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		ix.logger.Warn("remote index response decode failed, using local fallback", "error", err)
		return Result{}, false
	}
	if len(decoded.Matches) == 0 {
		return Result{}, false
	}

	best := decoded.Matches[0]
	if best.Score < ix.threshold {
		// The remote index answered; a weak match is a final "none".
		return Result{Similarity: best.Score, Provenance: ProvenanceRemote}, true
	}

	name := best.ID
	if entry, found := ix.cache.Lookup(best.ID); found {
		name = entry.Name
	}
	return Result{
		Matched:    true,
		RollNumber: best.ID,
		Name:       name,
		Similarity: best.Score,
		Provenance: ProvenanceRemote,
	}, true
}

// scanLocal runs the linear cosine scan over the local table, selecting
// the strict maximum with ties broken by insertion order.
func (ix *Index) scanLocal(embedding []float64) Result {
	var (
		bestEntry Entry
		bestSim   = math.Inf(-1)
		found     bool
	)
	for _, entry := range ix.cache.Snapshot() {
		sim := CosineSimilarity(embedding, entry.Embedding)
		if sim > bestSim {
			bestSim = sim
			bestEntry = entry
			found = true
		}
	}

	if !found {
		return Result{Provenance: ProvenanceLocal}
	}
	if bestSim < ix.threshold {
		return Result{Similarity: bestSim, Provenance: ProvenanceLocal}
	}
	return Result{
		Matched:    true,
		RollNumber: bestEntry.RollNumber,
		Name:       bestEntry.Name,
		Similarity: bestSim,
		Provenance: ProvenanceLocal,
	}
}

// CosineSimilarity returns the cosine similarity of two vectors in
// [-1, 1]. Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Threshold returns the configured acceptance threshold.
func (ix *Index) Threshold() float64 {
	return ix.threshold
}
