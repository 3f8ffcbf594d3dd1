package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/dsetyadi/chatagent/internal/ai"
	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

// TokenCounter measures how many tokens a text costs to embed.
type TokenCounter interface {
	Count(text string) int
}

// Pricing is the per-model price table, dollars per 1000 tokens.
// Passed in at construction; values are configuration data and will
// drift from real provider pricing.
type Pricing struct {
	PerThousandTokens  map[string]float64
	DefaultPerThousand float64
}

func (p Pricing) CostFor(modelName string, tokens int) float64 {
	price, ok := p.PerThousandTokens[modelName]
	if !ok {
		price = p.DefaultPerThousand
	}
	return float64(tokens) / 1000.0 * price
}

// Client turns texts into embedding vectors through an IEmbedProvider,
// recording token/cost usage after every call. Single-text embeds are
// cached so repeated queries do not hit the provider again.
type Client struct {
	provider ai.IEmbedProvider
	counter  TokenCounter
	model    string
	pricing  Pricing
	cache    *expirable.LRU[string, []float32]
}

func NewClient(provider ai.IEmbedProvider, counter TokenCounter, modelName string, pricing Pricing) *Client {
	cache := expirable.NewLRU[string, []float32](4096, nil, 2*time.Hour)
	return &Client{
		provider: provider,
		counter:  counter,
		model:    modelName,
		pricing:  pricing,
		cache:    cache,
	}
}

func (c *Client) ModelName() string {
	return c.model
}

// EmbedOne embeds a single text, typically a user query.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, appErr.Validation("cannot embed empty text")
	}
	cacheKey := c.cacheKey(text)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached, nil
	}

	started := time.Now()
	vectors, err := c.provider.Embed(ctx, c.model, []string{text})
	if err != nil {
		return nil, appErr.Provider(err)
	}
	if len(vectors) != 1 {
		return nil, appErr.Provider(fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}
	c.logUsage(ctx, model.UsageRecord{
		Operation: model.UsageOpSingleText,
		Model:     c.model,
		Tokens:    c.counter.Count(text),
		Requests:  1,
		Elapsed:   time.Since(started),
	})
	c.cache.Add(cacheKey, vectors[0])
	return vectors[0], nil
}

// EmbedBatch embeds a batch of chunk texts in one provider call.
// The result is order-preserving with one vector per input; any
// failure aborts the whole batch and returns no vectors.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	tokens := 0
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, appErr.Validation("cannot embed empty text (input %d)", i)
		}
		tokens += c.counter.Count(text)
	}

	started := time.Now()
	vectors, err := c.provider.Embed(ctx, c.model, texts)
	if err != nil {
		return nil, appErr.Provider(err)
	}
	if len(vectors) != len(texts) {
		return nil, appErr.Provider(fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors)))
	}
	c.logUsage(ctx, model.UsageRecord{
		Operation: model.UsageOpBatchChunks,
		Model:     c.model,
		Tokens:    tokens,
		Requests:  1,
		Elapsed:   time.Since(started),
	})
	return vectors, nil
}

// logUsage appends the usage line the offline analyzer parses. It is
// observational only and must never fail the embedding call.
func (c *Client) logUsage(ctx context.Context, rec model.UsageRecord) {
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(ctx).Warn("usage logging failed", zap.Any("panic", r))
		}
	}()
	rec.Cost = c.pricing.CostFor(rec.Model, rec.Tokens)
	logutil.GetLogger(ctx).Info(FormatUsage(rec))
}

func (c *Client) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.model + ":" + text))
	return hex.EncodeToString(hash[:])
}

// FormatUsage renders one UsageRecord in the stable line format the
// usage analyzer greps for.
func FormatUsage(rec model.UsageRecord) string {
	return fmt.Sprintf(
		"EMBEDDING_USAGE | Operation: %s | Model: %s | Tokens: %d | Requests: %d | Time: %.3fs | Cost: $%.8f USD",
		rec.Operation,
		rec.Model,
		rec.Tokens,
		rec.Requests,
		rec.Elapsed.Seconds(),
		rec.Cost,
	)
}
