package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dsetyadi/chatagent/internal/model"
	"github.com/dsetyadi/chatagent/internal/pkg/errcode"
	"github.com/dsetyadi/chatagent/internal/pkg/response"
	"github.com/dsetyadi/chatagent/internal/service"
)

type ChatHandler struct {
	rag    *service.RAGService
	search *service.SearchService
}

func NewChatHandler(rag *service.RAGService, search *service.SearchService) *ChatHandler {
	return &ChatHandler{rag: rag, search: search}
}

type chatRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	answer, err := h.rag.Answer(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, answer)
}

type searchResult struct {
	Results        []model.ScoredChunk `json:"results"`
	RelevanceScore float64             `json:"relevance_score"`
	Quality        string              `json:"quality"`
}

func (h *ChatHandler) Search(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	results, err := h.search.Search(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		response.FromError(c, err)
		return
	}
	var meanSim float64
	for _, r := range results {
		meanSim += r.Similarity
	}
	if len(results) > 0 {
		meanSim /= float64(len(results))
	}
	response.Success(c, searchResult{
		Results:        results,
		RelevanceScore: service.RelevanceScore(results),
		Quality:        service.QualityLabel(meanSim),
	})
}
