package service

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
	"github.com/dsetyadi/chatagent/internal/repo"
)

type fakeQueryEmbedder struct {
	calls int
	err   error
}

func (f *fakeQueryEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeNearest struct {
	hits []repo.NearestChunk
	err  error
	topK int
}

func (f *fakeNearest) Nearest(ctx context.Context, queryVector []float32, k int) ([]repo.NearestChunk, error) {
	f.topK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func mlHits() []repo.NearestChunk {
	return []repo.NearestChunk{
		{
			Chunk: model.Chunk{
				DocumentID: 1, ChunkIndex: 0,
				Content: "Machine Learning is a subset of AI that learns patterns from data.",
			},
			Filename: "ml.txt",
			Distance: 0.12,
		},
		{
			Chunk: model.Chunk{
				DocumentID: 1, ChunkIndex: 2,
				Content: "Neural networks power most modern machine learning systems.",
			},
			Filename: "ml.txt",
			Distance: 0.37,
		},
	}
}

func TestSearchScoresAndLabels(t *testing.T) {
	embedder := &fakeQueryEmbedder{}
	nearest := &fakeNearest{hits: mlHits()}
	svc := NewSearchService(embedder, nearest, 3, 1000)

	results, err := svc.Search(context.Background(), "What is machine learning?", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if nearest.topK != 3 {
		t.Fatalf("default top_k not applied, got %d", nearest.topK)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	first := results[0]
	if math.Abs(first.Similarity-(1-0.12)) > 1e-9 {
		t.Fatalf("similarity = %v, want %v", first.Similarity, 1-0.12)
	}
	if first.SourceLabel != "ml.txt#0" {
		t.Fatalf("source label = %q", first.SourceLabel)
	}
	wantRel := (1/(1+0.12) + 1/(1+0.37)) / 2
	if got := RelevanceScore(results); math.Abs(got-wantRel) > 1e-9 {
		t.Fatalf("relevance = %v, want %v", got, wantRel)
	}
}

func TestSearchSimilarityIsOneMinusDistance(t *testing.T) {
	svc := NewSearchService(&fakeQueryEmbedder{}, &fakeNearest{hits: mlHits()}, 3, 1000)
	results, err := svc.Search(context.Background(), "machine learning", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		want := 1 - r.Distance
		if math.Abs(r.Similarity-want) > 1e-9 {
			t.Fatalf("distance %v: similarity = %v, want %v", r.Distance, r.Similarity, want)
		}
		// Similarity and the aggregate relevance term use different formulas.
		if math.Abs(r.Similarity-1/(1+r.Distance)) < 1e-9 {
			t.Fatalf("distance %v: similarity %v matches 1/(1+d)", r.Distance, r.Similarity)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := NewSearchService(&fakeQueryEmbedder{}, &fakeNearest{}, 3, 1000)
	_, err := svc.Search(context.Background(), "  ", 5)
	if !appErr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestSearchStorageErrorPassthrough(t *testing.T) {
	nearest := &fakeNearest{err: appErr.Storage(context.DeadlineExceeded)}
	svc := NewSearchService(&fakeQueryEmbedder{}, nearest, 3, 1000)
	_, err := svc.Search(context.Background(), "q", 1)
	if !appErr.IsTimeout(err) {
		t.Fatalf("want timeout classification, got %v", err)
	}
}

func TestRelevanceScoreEmpty(t *testing.T) {
	if got := RelevanceScore(nil); got != 0 {
		t.Fatalf("empty relevance = %v, want 0", got)
	}
}

func TestQualityLabel(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "Excellent"},
		{0.8, "Excellent"},
		{0.7, "Good"},
		{0.45, "Fair"},
		{0.1, "Poor"},
	}
	for _, c := range cases {
		if got := QualityLabel(c.score); got != c.want {
			t.Fatalf("QualityLabel(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestBuildContextLabelsAndOrder(t *testing.T) {
	svc := NewSearchService(&fakeQueryEmbedder{}, &fakeNearest{}, 3, 1000)
	results := []model.ScoredChunk{
		{Chunk: model.Chunk{Content: "First chunk."}, SourceLabel: "a.txt#0"},
		{Chunk: model.Chunk{Content: "Second chunk."}, SourceLabel: "b.txt#4"},
	}
	got := svc.BuildContext(results)
	wantOrder := []string{"[a.txt#0]", "First chunk.", "[b.txt#4]", "Second chunk."}
	last := -1
	for _, w := range wantOrder {
		idx := strings.Index(got, w)
		if idx < 0 || idx < last {
			t.Fatalf("context out of order, missing %q in %q", w, got)
		}
		last = idx
	}
}

func TestTruncateAtSentence(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "Short text.", 100, "Short text."},
		{"sentence boundary", "First sentence. Second sentence goes on and on.", 20, "First sentence."},
		{"no boundary hard cut", "abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"boundary with quote", `He said "stop." Then he left for the night.`, 20, `He said "stop."`},
	}
	for _, c := range cases {
		if got := truncateAtSentence(c.text, c.max); got != c.want {
			t.Fatalf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestTruncateAtSentenceKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 20)
	got := truncateAtSentence(text, 11)
	if len(got)%2 != 0 {
		t.Fatalf("hard cut split a rune: %q", got)
	}
}
