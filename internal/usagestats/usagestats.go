package usagestats

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry is one EMBEDDING_USAGE log line with its timestamp.
type Entry struct {
	Timestamp time.Time
	Operation string
	Model     string
	Tokens    int
	Requests  int
	Seconds   float64
	Cost      float64
}

var (
	usageRe = regexp.MustCompile(
		`EMBEDDING_USAGE \| Operation: (\w+) \| ` +
			`Model: ([\w.-]+) \| ` +
			`Tokens: ([\d,]+) \| ` +
			`Requests: (\d+) \| ` +
			`Time: ([\d.]+)s \| ` +
			`Cost: \$([\d.]+) USD`)
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}`)
)

// ParseLine extracts a usage entry from one log line. The second return is
// false for lines that carry no usage record.
func ParseLine(line string) (Entry, bool) {
	m := usageRe.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	ts := time.Time{}
	if tm := timestampRe.FindString(line); tm != "" {
		tm = strings.Replace(tm, "T", " ", 1)
		if parsed, err := time.ParseInLocation("2006-01-02 15:04:05", tm, time.Local); err == nil {
			ts = parsed
		}
	}
	tokens, _ := strconv.Atoi(strings.ReplaceAll(m[3], ",", ""))
	requests, _ := strconv.Atoi(m[4])
	seconds, _ := strconv.ParseFloat(m[5], 64)
	cost, _ := strconv.ParseFloat(m[6], 64)
	return Entry{
		Timestamp: ts,
		Operation: m[1],
		Model:     m[2],
		Tokens:    tokens,
		Requests:  requests,
		Seconds:   seconds,
		Cost:      cost,
	}, true
}

// Parse reads a whole log stream and keeps the usage lines.
func Parse(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if entry, ok := ParseLine(sc.Text()); ok {
			out = append(out, entry)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return out, nil
}

// Bucket accumulates usage grouped by one key (model, operation or day).
type Bucket struct {
	Tokens   int
	Requests int
	Seconds  float64
	Cost     float64
	Count    int
}

func (b *Bucket) add(e Entry) {
	b.Tokens += e.Tokens
	b.Requests += e.Requests
	b.Seconds += e.Seconds
	b.Cost += e.Cost
	b.Count++
}

type Report struct {
	TotalCost     float64
	TotalTokens   int
	TotalRequests int
	TotalSeconds  float64
	Entries       int
	First, Last   time.Time
	ByModel       map[string]*Bucket
	ByOperation   map[string]*Bucket
	ByDay         map[string]*Bucket
}

// Analyze aggregates entries newer than since. A zero since keeps everything.
func Analyze(entries []Entry, since time.Time) *Report {
	rep := &Report{
		ByModel:     map[string]*Bucket{},
		ByOperation: map[string]*Bucket{},
		ByDay:       map[string]*Bucket{},
	}
	for _, e := range entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		rep.TotalCost += e.Cost
		rep.TotalTokens += e.Tokens
		rep.TotalRequests += e.Requests
		rep.TotalSeconds += e.Seconds
		rep.Entries++
		if rep.First.IsZero() || e.Timestamp.Before(rep.First) {
			rep.First = e.Timestamp
		}
		if e.Timestamp.After(rep.Last) {
			rep.Last = e.Timestamp
		}
		bucketFor(rep.ByModel, e.Model).add(e)
		bucketFor(rep.ByOperation, e.Operation).add(e)
		bucketFor(rep.ByDay, e.Timestamp.Format("2006-01-02")).add(e)
	}
	return rep
}

func bucketFor(m map[string]*Bucket, key string) *Bucket {
	b, ok := m[key]
	if !ok {
		b = &Bucket{}
		m[key] = b
	}
	return b
}

// Render writes the report as plain text.
func Render(w io.Writer, rep *Report) {
	if rep.Entries == 0 {
		fmt.Fprintln(w, "no embedding usage records found")
		return
	}
	fmt.Fprintln(w, "embedding usage summary")
	fmt.Fprintf(w, "  period:     %s .. %s\n", rep.First.Format("2006-01-02"), rep.Last.Format("2006-01-02"))
	fmt.Fprintf(w, "  cost:       $%.6f USD\n", rep.TotalCost)
	fmt.Fprintf(w, "  tokens:     %d\n", rep.TotalTokens)
	fmt.Fprintf(w, "  requests:   %d\n", rep.TotalRequests)
	fmt.Fprintf(w, "  time:       %.2fs\n", rep.TotalSeconds)
	fmt.Fprintf(w, "  records:    %d\n", rep.Entries)
	if rep.TotalTokens > 0 {
		fmt.Fprintf(w, "  avg $/1k:   $%.6f\n", rep.TotalCost/float64(rep.TotalTokens)*1000)
	}
	renderGroup(w, "by model", rep.ByModel, rep.TotalCost)
	renderGroup(w, "by operation", rep.ByOperation, rep.TotalCost)
	renderGroup(w, "by day", rep.ByDay, rep.TotalCost)
}

func renderGroup(w io.Writer, title string, group map[string]*Bucket, totalCost float64) {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if group[keys[i]].Cost != group[keys[j]].Cost {
			return group[keys[i]].Cost > group[keys[j]].Cost
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(w, "\n%s\n", title)
	for _, k := range keys {
		b := group[k]
		share := 0.0
		if totalCost > 0 {
			share = b.Cost / totalCost * 100
		}
		fmt.Fprintf(w, "  %-24s $%.6f (%.1f%%)  %d tokens, %d requests, %d records\n",
			k, b.Cost, share, b.Tokens, b.Requests, b.Count)
	}
}

// WriteCSV exports raw entries for spreadsheet analysis.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "operation", "model", "tokens", "requests", "time", "cost"}); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Operation,
			e.Model,
			strconv.Itoa(e.Tokens),
			strconv.Itoa(e.Requests),
			strconv.FormatFloat(e.Seconds, 'f', 3, 64),
			strconv.FormatFloat(e.Cost, 'f', 8, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
