package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/dsetyadi/chatagent/internal/service"
)

// EmbeddingBackfillJob retries embeddings for chunks that were stored with
// null vectors after a provider outage during ingestion.
type EmbeddingBackfillJob struct {
	backfill *service.BackfillService
}

func NewEmbeddingBackfillJob(backfill *service.BackfillService) *EmbeddingBackfillJob {
	return &EmbeddingBackfillJob{backfill: backfill}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	if j.backfill == nil {
		return nil
	}
	repaired, err := j.backfill.ProcessPendingEmbeddings(ctx)
	if repaired > 0 {
		logutil.GetLogger(ctx).Info("embedding backfill repaired chunks", zap.Int("count", repaired))
	}
	return err
}
