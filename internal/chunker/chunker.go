package chunker

import (
	"regexp"

	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

const (
	DefaultMaxTokens     = 8000
	DefaultOverlapTokens = 200
)

// Tokenizer is the subset of the token package the chunker needs.
type Tokenizer interface {
	Count(text string) int
	Encode(text string) []int
	Decode(ids []int) string
}

// Chunker splits document text into token-bounded chunks that prefer
// sentence boundaries. Consecutive chunks share up to overlapTokens of
// trailing context. Splitting is a pure function of (text, config): the
// same input always yields the same chunk boundaries.
type Chunker struct {
	tok           Tokenizer
	maxTokens     int
	overlapTokens int
}

func New(tok Tokenizer, maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, appErr.Validation("max_tokens_per_chunk must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 {
		return nil, appErr.Validation("overlap_tokens must not be negative, got %d", overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, appErr.Validation("overlap_tokens (%d) must be smaller than max_tokens_per_chunk (%d)", overlapTokens, maxTokens)
	}
	return &Chunker{tok: tok, maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Sentence boundary heuristic: terminal punctuation (optionally closed
// by quotes/brackets) followed by whitespace. Trailing whitespace stays
// attached to the preceding sentence so offsets remain recoverable.
// Best effort only; abbreviations like "Dr." will split early.
var sentenceBoundary = regexp.MustCompile(`[.!?]+[)\]"']*\s+`)

type span struct {
	start int
	end   int
}

// sentenceSpans covers the whole text with contiguous sentence spans:
// the first starts at 0, the last ends at len(text), no gaps between.
func sentenceSpans(text string) []span {
	var spans []span
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		spans = append(spans, span{start: start, end: loc[1]})
		start = loc[1]
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// Split chunks text. Every returned chunk satisfies
// TokenCount <= maxTokens, chunk 0 starts at offset 0, the last chunk
// ends at len(text), and consecutive chunks leave no gap.
func (c *Chunker) Split(text string) []model.Chunk {
	if text == "" {
		return nil
	}

	var chunks []model.Chunk
	curStart, curEnd := 0, 0
	curTokens := 0
	hasBody := false

	emit := func(start, end int) {
		content := text[start:end]
		chunks = append(chunks, model.Chunk{
			ChunkIndex: len(chunks),
			Content:    content,
			TokenCount: c.tok.Count(content),
			StartChar:  start,
			EndChar:    end,
		})
	}

	// closeCurrent emits the accumulated chunk and seeds the next one
	// with the trailing overlap tokens decoded back to text. A decoded
	// token suffix is an exact byte suffix of the content, so the
	// seeded region remains a contiguous slice of the original text.
	closeCurrent := func() {
		emit(curStart, curEnd)
		hasBody = false
		if c.overlapTokens == 0 {
			curStart = curEnd
			curTokens = 0
			return
		}
		ids := c.tok.Encode(text[curStart:curEnd])
		ov := c.overlapTokens
		if ov > len(ids) {
			ov = len(ids)
		}
		tail := c.tok.Decode(ids[len(ids)-ov:])
		curStart = curEnd - len(tail)
		curTokens = c.tok.Count(tail)
	}

	for _, s := range sentenceSpans(text) {
		sentTokens := c.tok.Count(text[s.start:s.end])

		if sentTokens > c.maxTokens {
			if hasBody {
				closeCurrent()
			}
			curStart, curEnd, curTokens = c.forceSplit(text, s, emit)
			hasBody = true
			continue
		}

		if curTokens+sentTokens > c.maxTokens {
			if hasBody {
				closeCurrent()
			}
			// the seeded overlap plus this sentence may still not fit;
			// shrink the overlap away rather than emitting a chunk made
			// of nothing but duplicated context
			if curTokens+sentTokens > c.maxTokens {
				curStart = s.start
				curTokens = 0
			}
		}

		curEnd = s.end
		curTokens += sentTokens
		hasBody = true
	}

	if hasBody {
		emit(curStart, curEnd)
	}
	return chunks
}

// forceSplit cuts a single sentence that exceeds the chunk budget at
// raw token boundaries, emitting every full piece directly. The final
// piece is left open as the new accumulator state so later sentences
// can still be appended to it.
func (c *Chunker) forceSplit(text string, s span, emit func(start, end int)) (start, end, tokens int) {
	ids := c.tok.Encode(text[s.start:s.end])
	step := c.maxTokens - c.overlapTokens
	byteOff := func(k int) int {
		return s.start + len(c.tok.Decode(ids[:k]))
	}
	i := 0
	for i+c.maxTokens < len(ids) {
		emit(byteOff(i), byteOff(i+c.maxTokens))
		i += step
	}
	return byteOff(i), s.end, len(ids) - i
}
