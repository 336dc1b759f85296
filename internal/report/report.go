package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"research-enricher/internal/models"
)

// Ledger splits token usage and cost between the facts and analysis calls
type Ledger struct {
	Facts    models.Usage
	Analysis models.Usage
	Total    models.Usage
}

// NewLedger recomputes the ledger from persisted records
func NewLedger(records []models.DocumentRecord) Ledger {
	var l Ledger
	for _, rec := range records {
		l.Facts = l.Facts.Add(rec.FactsUsage)
		if rec.AnalysisUsage != nil {
			l.Analysis = l.Analysis.Add(*rec.AnalysisUsage)
		}
	}
	l.Total = models.Usage{
		InputTokens:  l.Facts.InputTokens + l.Analysis.InputTokens,
		OutputTokens: l.Facts.OutputTokens + l.Analysis.OutputTokens,
		Cost:         l.Facts.Cost + l.Analysis.Cost,
	}
	return l
}

// Histogram counts records per relevance band
type Histogram struct {
	High   int // 8-10
	Medium int // 5-7
	Low    int // 0-4
}

// Bands buckets records by relevance score
func Bands(records []models.DocumentRecord) Histogram {
	var h Histogram
	for _, rec := range records {
		switch {
		case rec.RelevanceScore >= 8:
			h.High++
		case rec.RelevanceScore >= 5:
			h.Medium++
		default:
			h.Low++
		}
	}
	return h
}

// Categories counts records per research category
func Categories(records []models.DocumentRecord) map[models.Category]int {
	counts := make(map[models.Category]int)
	for _, rec := range records {
		counts[rec.Category()]++
	}
	return counts
}

// Summary is everything the final report prints
type Summary struct {
	Files      int
	Partial    int
	Ledger     Ledger
	Histogram  Histogram
	Categories map[models.Category]int
	Tags       int
}

// Summarize builds a Summary from the result set and the registry size
func Summarize(records []models.DocumentRecord, tagCount int) Summary {
	partial := 0
	for _, rec := range records {
		if rec.AnalysisUsage == nil {
			partial++
		}
	}
	return Summary{
		Files:      len(records),
		Partial:    partial,
		Ledger:     NewLedger(records),
		Histogram:  Bands(records),
		Categories: Categories(records),
		Tags:       tagCount,
	}
}

// Render writes the plain-text summary report
func Render(w io.Writer, s Summary) error {
	var b strings.Builder
	l := s.Ledger

	b.WriteString("PROCESSING SUMMARY:\n")
	fmt.Fprintf(&b, "- Files processed: %d", s.Files)
	if s.Partial > 0 {
		fmt.Fprintf(&b, " (%d without content analysis)", s.Partial)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Total estimated cost: $%.6f\n", l.Total.Cost)
	fmt.Fprintf(&b, "- Tags in registry: %d\n\n", s.Tags)

	b.WriteString("COST BREAKDOWN:\n")
	fmt.Fprintf(&b, "- Basic facts (%s): $%.6f\n", modelName(l.Facts), l.Facts.Cost)
	fmt.Fprintf(&b, "- Content analysis (%s): $%.6f\n\n", modelName(l.Analysis), l.Analysis.Cost)

	b.WriteString("TOKEN USAGE:\n")
	fmt.Fprintf(&b, "- Total input tokens: %s (Facts: %s, Analysis: %s)\n",
		comma(l.Total.InputTokens), comma(l.Facts.InputTokens), comma(l.Analysis.InputTokens))
	fmt.Fprintf(&b, "- Total output tokens: %s (Facts: %s, Analysis: %s)\n\n",
		comma(l.Total.OutputTokens), comma(l.Facts.OutputTokens), comma(l.Analysis.OutputTokens))

	b.WriteString("RESEARCH CATEGORIES:")
	cats := make([]string, 0, len(s.Categories))
	for c := range s.Categories {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(&b, "\n- %s: %d", c, s.Categories[models.Category(c)])
	}
	b.WriteString("\n\n")

	b.WriteString("RELEVANCE SCORES:\n")
	fmt.Fprintf(&b, "- High (8-10): %d\n", s.Histogram.High)
	fmt.Fprintf(&b, "- Medium (5-7): %d\n", s.Histogram.Medium)
	fmt.Fprintf(&b, "- Low (0-4): %d\n", s.Histogram.Low)

	_, err := io.WriteString(w, b.String())
	return err
}

func modelName(u models.Usage) string {
	if u.Model == "" {
		return "none"
	}
	return u.Model
}

func comma(n int) string {
	return humanize.Comma(int64(n))
}
