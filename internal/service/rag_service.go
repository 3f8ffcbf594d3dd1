package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/dsetyadi/chatagent/internal/ai"
	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

// Pipeline states for one answer request, logged as the request advances.
const (
	stateReceived   = "received"
	stateEmbedding  = "embedding"
	stateRetrieving = "retrieving"
	stateGenerating = "generating"
	stateCompleted  = "completed"
	stateFailed     = "failed"
)

const emptyContextNotice = "No relevant information was found in the knowledge base. " +
	"Say so instead of answering from outside knowledge."

type RAGService struct {
	search             *SearchService
	chat               ai.IChatProvider
	chatModel          string
	systemPrompt       string
	userPromptTemplate string
	timeout            time.Duration
}

func NewRAGService(search *SearchService, chat ai.IChatProvider, chatModel, systemPrompt, userPromptTemplate string, timeout time.Duration) *RAGService {
	return &RAGService{
		search:             search,
		chat:               chat,
		chatModel:          chatModel,
		systemPrompt:       systemPrompt,
		userPromptTemplate: userPromptTemplate,
		timeout:            timeout,
	}
}

// Answer runs the full question pipeline: embed the query, retrieve the
// nearest chunks, assemble the context and call the chat model. No retries;
// any stage error fails the whole request. A request has no side effects,
// so callers may safely re-invoke on failure.
func (s *RAGService) Answer(ctx context.Context, query string, topK int) (*model.Answer, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("chat_model", s.chatModel))
	logger.Debug("answer pipeline", zap.String("state", stateReceived))
	if strings.TrimSpace(query) == "" {
		return nil, appErr.Validation("query is empty")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.Debug("answer pipeline", zap.String("state", stateEmbedding))
	results, err := s.search.Search(ctx, query, topK)
	if err != nil {
		logger.Error("answer pipeline", zap.String("state", stateFailed), zap.Error(err))
		return nil, err
	}

	logger.Debug("answer pipeline", zap.String("state", stateRetrieving), zap.Int("chunks", len(results)))
	contextBlock := s.search.BuildContext(results)
	if contextBlock == "" {
		contextBlock = emptyContextNotice
	}
	prompt := strings.NewReplacer(
		"{context}", contextBlock,
		"{query}", query,
	).Replace(s.userPromptTemplate)

	logger.Debug("answer pipeline", zap.String("state", stateGenerating))
	answer, err := s.chat.Generate(ctx, s.chatModel, s.systemPrompt, prompt)
	if err != nil {
		err = appErr.Provider(err)
		logger.Error("answer pipeline", zap.String("state", stateFailed), zap.Error(err))
		return nil, err
	}

	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, model.Source{
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			Similarity: r.Similarity,
		})
	}
	out := &model.Answer{
		Answer:         answer,
		RelevanceScore: RelevanceScore(results),
		Sources:        sources,
		ModelUsed:      s.chatModel,
	}
	logger.Info("answer pipeline", zap.String("state", stateCompleted),
		zap.Int("sources", len(sources)), zap.Float64("relevance", out.RelevanceScore))
	return out, nil
}
