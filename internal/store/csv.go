package store

import (
	"strconv"
	"strings"

	"research-enricher/internal/models"
)

var recordColumns = []string{
	"academic_name", "filename", "title", "authors", "publication_year", "doi",
	"relevance_score", "research_category", "summary",
	"one_on_one_applicability", "small_group_applicability",
	"large_group_applicability", "self_education_applicability",
	"tags", "input_tokens", "output_tokens", "estimated_cost",
	"sections_analyzed", "model_used", "processed_date",
}

// ExportCSV writes the records as a spreadsheet with academic short names
func (s *Store) ExportCSV(path string) error {
	records := s.Records()
	names := AcademicNames(records)

	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		app := rec.Classification.Applicability()
		rows = append(rows, []string{
			names[i],
			rec.Filename,
			rec.Title,
			strings.Join(rec.Authors, "; "),
			rec.PublicationYear.String(),
			rec.DOI,
			strconv.Itoa(rec.RelevanceScore),
			string(rec.Category()),
			rec.Summary,
			app.OneOnOne,
			app.SmallGroup,
			app.LargeGroup,
			app.SelfEducation,
			strings.Join(rec.Tags, "; "),
			strconv.Itoa(rec.InputTokens),
			strconv.Itoa(rec.OutputTokens),
			strconv.FormatFloat(rec.EstimatedCost, 'f', 6, 64),
			strings.Join(rec.SectionsAnalyzed, "; "),
			rec.ModelUsed,
			rec.ProcessedAt.Format("2006-01-02T15:04:05"),
		})
	}
	return WriteCSV(path, recordColumns, rows)
}

// AcademicNames returns "LastNameYear" per record; names shared by several records
// get a, b, c... suffixes in record order.
func AcademicNames(records []models.DocumentRecord) []string {
	bases := make([]string, len(records))
	counts := make(map[string]int)
	for i, rec := range records {
		bases[i] = rec.FirstAuthorLastName() + rec.PublicationYear.String()
		counts[strings.ToLower(bases[i])]++
	}

	seen := make(map[string]int)
	names := make([]string, len(records))
	for i, base := range bases {
		key := strings.ToLower(base)
		if counts[key] == 1 {
			names[i] = base
			continue
		}
		names[i] = base + suffix(seen[key])
		seen[key]++
	}
	return names
}

// suffix maps 0, 1, ... 25, 26 to a, b, ... z, aa
func suffix(n int) string {
	s := ""
	for {
		s = string(rune('a'+n%26)) + s
		n = n/26 - 1
		if n < 0 {
			return s
		}
	}
}
