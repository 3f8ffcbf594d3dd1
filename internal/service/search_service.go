package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
	"github.com/dsetyadi/chatagent/internal/repo"
)

// QueryEmbedder produces the vector for a single search query.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// NearestSearcher runs the vector similarity lookup against stored chunks.
type NearestSearcher interface {
	Nearest(ctx context.Context, queryVector []float32, k int) ([]repo.NearestChunk, error)
}

type SearchService struct {
	embedder         QueryEmbedder
	chunks           NearestSearcher
	defaultTopK      int
	maxContextLength int
}

func NewSearchService(embedder QueryEmbedder, chunks NearestSearcher, defaultTopK, maxContextLength int) *SearchService {
	return &SearchService{
		embedder:         embedder,
		chunks:           chunks,
		defaultTopK:      defaultTopK,
		maxContextLength: maxContextLength,
	}
}

// Search embeds the query and returns the topK closest chunks with their
// similarity scores. topK <= 0 falls back to the configured default.
func (s *SearchService) Search(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, appErr.Validation("search query is empty")
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.chunks.Nearest(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	results := make([]model.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		results = append(results, model.ScoredChunk{
			Chunk:       hit.Chunk,
			Filename:    hit.Filename,
			Distance:    hit.Distance,
			Similarity:  1 - hit.Distance,
			SourceLabel: fmt.Sprintf("%s#%d", hit.Filename, hit.Chunk.ChunkIndex),
		})
	}
	logutil.GetLogger(ctx).Debug("search done",
		zap.Int("top_k", topK), zap.Int("results", len(results)),
		zap.Float64("relevance", RelevanceScore(results)))
	return results, nil
}

// RelevanceScore is the mean of 1/(1+distance) over the results, in (0, 1].
// An empty result set scores 0.
func RelevanceScore(results []model.ScoredChunk) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += 1 / (1 + r.Distance)
	}
	return sum / float64(len(results))
}

// QualityLabel buckets a mean similarity score into a human readable grade.
// Callers pass the average of 1-distance over the hits, not RelevanceScore.
func QualityLabel(score float64) string {
	switch {
	case score >= 0.8:
		return "Excellent"
	case score >= 0.6:
		return "Good"
	case score >= 0.4:
		return "Fair"
	default:
		return "Poor"
	}
}

var truncBoundaryRe = regexp.MustCompile(`[.!?]+[)\]"']*(\s|$)`)

// BuildContext assembles the prompt context block. Each chunk is prefixed
// with its source label and truncated to maxContextLength characters at a
// sentence boundary where one exists.
func (s *SearchService) BuildContext(results []model.ScoredChunk) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		content := truncateAtSentence(r.Content, s.maxContextLength)
		parts = append(parts, fmt.Sprintf("[%s]\n%s", r.SourceLabel, content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// truncateAtSentence cuts text to at most maxLen bytes, preferring the end
// of the last complete sentence that fits. Falls back to a hard cut when no
// sentence boundary lands inside the window.
func truncateAtSentence(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	for maxLen > 0 && !utf8.RuneStart(text[maxLen]) {
		maxLen--
	}
	window := text[:maxLen]
	matches := truncBoundaryRe.FindAllStringIndex(window, -1)
	if len(matches) > 0 {
		end := matches[len(matches)-1][1]
		return strings.TrimRight(window[:end], " \t\n")
	}
	return window
}
