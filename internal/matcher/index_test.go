package matcher

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
)

func newLocalIndex(threshold float64, entries ...Entry) *Index {
	cache := NewEmbeddingCache()
	cache.Replace(entries)
	return NewIndex(&conf.MatcherSettings{
		Threshold: threshold,
		Timeout:   time.Second,
	}, cache)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-3, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 5}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}

func TestBestMatchLocalThresholdInclusive(t *testing.T) {
	t.Parallel()

	// Query vector at exactly the threshold similarity must be accepted.
	ix := newLocalIndex(0.5, Entry{RollNumber: "101", Name: "S1", Embedding: []float64{1, 0}})

	// cos(60°) = 0.5 exactly.
	result := ix.BestMatch(context.Background(), []float64{0.5, 0.8660254037844387})
	assert.True(t, result.Matched)
	assert.Equal(t, "101", result.RollNumber)
	assert.Equal(t, ProvenanceLocal, result.Provenance)
	assert.InDelta(t, 0.5, result.Similarity, 1e-9)
}

func TestBestMatchBelowThresholdIsNone(t *testing.T) {
	t.Parallel()

	ix := newLocalIndex(0.9, Entry{RollNumber: "101", Name: "S1", Embedding: []float64{1, 0}})

	result := ix.BestMatch(context.Background(), []float64{0.5, 0.8660254037844387})
	assert.False(t, result.Matched)
	assert.Empty(t, result.RollNumber)
	assert.InDelta(t, 0.5, result.Similarity, 1e-9)
}

func TestBestMatchTieBreaksByInsertionOrder(t *testing.T) {
	t.Parallel()

	// Two identical embeddings: the first enrolled entry wins.
	ix := newLocalIndex(0.4,
		Entry{RollNumber: "101", Name: "first", Embedding: []float64{1, 1}},
		Entry{RollNumber: "102", Name: "second", Embedding: []float64{1, 1}},
	)

	result := ix.BestMatch(context.Background(), []float64{1, 1})
	require.True(t, result.Matched)
	assert.Equal(t, "101", result.RollNumber)
}

func TestBestMatchEmptyTable(t *testing.T) {
	t.Parallel()

	ix := newLocalIndex(0.5)
	result := ix.BestMatch(context.Background(), []float64{1, 0})
	assert.False(t, result.Matched)
}

func TestBestMatchRemotePreferred(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Replace([]Entry{{RollNumber: "101", Name: "S1", Embedding: []float64{0, 1}}})
	ix := NewIndex(&conf.MatcherSettings{
		RemoteURL: "http://index.test/query",
		Namespace: "students",
		Threshold: 0.45,
		Timeout:   time.Second,
	}, cache)
	httpmock.ActivateNonDefault(ix.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, "http://index.test/query",
		httpmock.NewStringResponder(200, `{"matches":[{"id":"101","score":0.91}]}`))

	result := ix.BestMatch(context.Background(), []float64{1, 0})
	assert.True(t, result.Matched)
	assert.Equal(t, "101", result.RollNumber)
	assert.Equal(t, "S1", result.Name)
	assert.Equal(t, ProvenanceRemote, result.Provenance)
}

func TestBestMatchRemoteFailureFallsBackToLocal(t *testing.T) {
	cache := NewEmbeddingCache()
	cache.Replace([]Entry{{RollNumber: "101", Name: "S1", Embedding: []float64{1, 0}}})
	ix := NewIndex(&conf.MatcherSettings{
		RemoteURL: "http://index.test/query",
		Threshold: 0.45,
		Timeout:   time.Second,
	}, cache)
	httpmock.ActivateNonDefault(ix.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, "http://index.test/query",
		httpmock.NewStringResponder(500, "down"))

	result := ix.BestMatch(context.Background(), []float64{1, 0})
	assert.True(t, result.Matched)
	assert.Equal(t, ProvenanceLocal, result.Provenance)
}

func TestBestMatchRemoteWeakMatchIsFinal(t *testing.T) {
	// A sub-threshold remote answer must not be upgraded by the local scan.
	cache := NewEmbeddingCache()
	cache.Replace([]Entry{{RollNumber: "101", Name: "S1", Embedding: []float64{1, 0}}})
	ix := NewIndex(&conf.MatcherSettings{
		RemoteURL: "http://index.test/query",
		Threshold: 0.45,
		Timeout:   time.Second,
	}, cache)
	httpmock.ActivateNonDefault(ix.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, "http://index.test/query",
		httpmock.NewStringResponder(200, `{"matches":[{"id":"101","score":0.2}]}`))

	result := ix.BestMatch(context.Background(), []float64{1, 0})
	assert.False(t, result.Matched)
	assert.Equal(t, ProvenanceRemote, result.Provenance)
}

func TestEmbeddingCacheReplaceDropsEmptyVectors(t *testing.T) {
	t.Parallel()

	cache := NewEmbeddingCache()
	cache.Replace([]Entry{
		{RollNumber: "101", Embedding: []float64{1}},
		{RollNumber: "102"},
	})
	assert.Equal(t, 1, cache.Len())
	_, found := cache.Lookup("102")
	assert.False(t, found)
}
