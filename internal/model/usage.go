package model

import "time"

const (
	UsageOpSingleText  = "single_text"
	UsageOpBatchChunks = "batch_chunks"
)

// UsageRecord captures one embedding API call for cost accounting.
// It is log-only: written after every call, read back exclusively by
// the offline usage analyzer.
type UsageRecord struct {
	Operation string
	Model     string
	Tokens    int
	Requests  int
	Elapsed   time.Duration
	Cost      float64
}
