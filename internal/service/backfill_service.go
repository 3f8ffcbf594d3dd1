package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/dsetyadi/chatagent/internal/model"
	"github.com/dsetyadi/chatagent/internal/pkg/timeutil"
)

// PendingChunkStore lists and repairs chunks whose embedding call failed
// during ingestion.
type PendingChunkStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]model.Chunk, error)
	UpdateEmbedding(ctx context.Context, chunkID int64, embedding []float32, mtime int64) error
}

type BackfillService struct {
	chunks   PendingChunkStore
	embedder BatchEmbedder
	pageSize int
}

func NewBackfillService(chunks PendingChunkStore, embedder BatchEmbedder, pageSize int) *BackfillService {
	if pageSize <= 0 {
		pageSize = 64
	}
	return &BackfillService{chunks: chunks, embedder: embedder, pageSize: pageSize}
}

// ProcessPendingEmbeddings embeds stored chunks that have no vector yet,
// one page per provider call, until the backlog is drained or a call fails.
// Returns the number of chunks repaired.
func (s *BackfillService) ProcessPendingEmbeddings(ctx context.Context) (int, error) {
	logger := logutil.GetLogger(ctx)
	total := 0
	for {
		pending, err := s.chunks.ListMissingEmbeddings(ctx, s.pageSize)
		if err != nil {
			return total, err
		}
		batch := make([]model.Chunk, 0, len(pending))
		for _, ch := range pending {
			if strings.TrimSpace(ch.Content) == "" {
				continue
			}
			batch = append(batch, ch)
		}
		if len(batch) == 0 {
			return total, nil
		}
		texts := make([]string, 0, len(batch))
		for _, ch := range batch {
			texts = append(texts, ch.Content)
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, err
		}
		now := timeutil.NowUnix()
		for i, ch := range batch {
			if err := s.chunks.UpdateEmbedding(ctx, ch.ID, vectors[i], now); err != nil {
				return total, err
			}
			total++
		}
		logger.Debug("embedding backfill page done", zap.Int("chunks", len(batch)))
		if len(pending) < s.pageSize {
			return total, nil
		}
	}
}
