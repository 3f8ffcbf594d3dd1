package usagestats

import (
	"strings"
	"testing"
	"time"

	"github.com/dsetyadi/chatagent/internal/embedding"
	"github.com/dsetyadi/chatagent/internal/model"
)

func TestParseLineRoundTrip(t *testing.T) {
	rec := model.UsageRecord{
		Operation: model.UsageOpBatchChunks,
		Model:     "text-embedding-3-small",
		Tokens:    1234,
		Requests:  1,
		Elapsed:   1520 * time.Millisecond,
		Cost:      0.00002468,
	}
	line := "2026-08-30 10:15:42\tINFO\t" + embedding.FormatUsage(rec)

	entry, ok := ParseLine(line)
	if !ok {
		t.Fatalf("line not recognized: %q", line)
	}
	if entry.Operation != "batch_chunks" || entry.Model != "text-embedding-3-small" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Tokens != 1234 || entry.Requests != 1 {
		t.Fatalf("unexpected counts %+v", entry)
	}
	if entry.Seconds != 1.520 {
		t.Fatalf("seconds = %v", entry.Seconds)
	}
	if entry.Cost != 0.00002468 {
		t.Fatalf("cost = %v", entry.Cost)
	}
	if entry.Timestamp.Format("2006-01-02 15:04:05") != "2026-08-30 10:15:42" {
		t.Fatalf("timestamp = %v", entry.Timestamp)
	}
}

func TestParseLineIgnoresOtherLines(t *testing.T) {
	for _, line := range []string{
		"",
		"2026-08-30 10:15:42 INFO document uploaded",
		"EMBEDDING_USAGE but not really",
	} {
		if _, ok := ParseLine(line); ok {
			t.Fatalf("line should not parse: %q", line)
		}
	}
}

const sampleLog = `2026-08-29 08:00:00 INFO EMBEDDING_USAGE | Operation: single_text | Model: text-embedding-3-small | Tokens: 10 | Requests: 1 | Time: 0.100s | Cost: $0.00000020 USD
2026-08-29 09:00:00 INFO some unrelated line
2026-08-30 08:00:00 INFO EMBEDDING_USAGE | Operation: batch_chunks | Model: text-embedding-3-small | Tokens: 1000 | Requests: 1 | Time: 0.900s | Cost: $0.00002000 USD
2026-08-30 09:00:00 INFO EMBEDDING_USAGE | Operation: batch_chunks | Model: text-embedding-3-large | Tokens: 500 | Requests: 1 | Time: 0.500s | Cost: $0.00006500 USD
`

func TestAnalyzeAggregates(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	rep := Analyze(entries, time.Time{})
	if rep.Entries != 3 {
		t.Fatalf("report entries = %d", rep.Entries)
	}
	if rep.TotalTokens != 1510 {
		t.Fatalf("total tokens = %d", rep.TotalTokens)
	}
	if got := rep.ByOperation["batch_chunks"].Count; got != 2 {
		t.Fatalf("batch_chunks count = %d", got)
	}
	if got := rep.ByModel["text-embedding-3-large"].Tokens; got != 500 {
		t.Fatalf("large model tokens = %d", got)
	}
	if len(rep.ByDay) != 2 {
		t.Fatalf("days = %d, want 2", len(rep.ByDay))
	}
}

func TestAnalyzeSinceFilter(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	since := time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local)
	rep := Analyze(entries, since)
	if rep.Entries != 2 {
		t.Fatalf("filtered entries = %d, want 2", rep.Entries)
	}
	if rep.TotalTokens != 1500 {
		t.Fatalf("filtered tokens = %d", rep.TotalTokens)
	}
}

func TestRenderEmpty(t *testing.T) {
	var sb strings.Builder
	Render(&sb, Analyze(nil, time.Time{}))
	if !strings.Contains(sb.String(), "no embedding usage records") {
		t.Fatalf("unexpected output %q", sb.String())
	}
}
