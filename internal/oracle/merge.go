package oracle

import (
	"time"

	"research-enricher/internal/models"
)

// Merge builds a DocumentRecord from the two partial records.
// Bibliographic fields always come from facts; a nil analysis leaves the record unclassified.
func Merge(doc models.Document, bundle models.SectionBundle, facts *BasicFacts, analysis *ContentAnalysis, now time.Time) models.DocumentRecord {
	rec := models.DocumentRecord{
		Filename:         doc.Filename,
		Path:             doc.Path,
		PageCount:        doc.PageCount,
		Title:            facts.Title,
		Authors:          facts.Authors,
		PublicationYear:  facts.Year,
		DOI:              facts.DOI,
		Classification:   models.Unclassified(),
		Tags:             []string{},
		FactsUsage:       facts.Usage,
		SectionsAnalyzed: bundle.Labels(),
		ModelUsed:        facts.Usage.Model,
		ProcessedAt:      now,
	}
	if rec.DOI == "" {
		rec.DOI = models.NotFound
	}

	total := facts.Usage
	if analysis != nil {
		rec.RelevanceScore = analysis.RelevanceScore
		rec.Classification = analysis.Classification
		rec.Summary = analysis.Summary
		rec.Tags = analysis.Tags
		usage := analysis.Usage
		rec.AnalysisUsage = &usage
		total = total.Add(usage)
		rec.ModelUsed = facts.Usage.Model + " + " + analysis.Usage.Model
	}

	rec.InputTokens = total.InputTokens
	rec.OutputTokens = total.OutputTokens
	rec.EstimatedCost = total.Cost
	return rec
}
