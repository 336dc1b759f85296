package tags

import (
	"context"
	"sort"

	"research-enricher/internal/models"
	"research-enricher/internal/oracle"
)

// Enhancer writes a richer definition for a tag from the articles that use it
type Enhancer interface {
	EnhanceTag(ctx context.Context, entry models.TagEntry, records []models.DocumentRecord) (oracle.Enhancement, models.Usage, error)
}

// EnhanceResult summarizes an enhancement pass
type EnhanceResult struct {
	Considered int
	Enhanced   int
	Failed     int
	Usage      models.Usage
}

// Enhance asks for a synthesized definition of every tag used by at least minUsage records.
// Failed tags keep their current entry.
func (r *Registry) Enhance(ctx context.Context, enh Enhancer, records []models.DocumentRecord, minUsage int) (EnhanceResult, error) {
	byFile := make(map[string]models.DocumentRecord, len(records))
	for _, rec := range records {
		byFile[rec.Filename] = rec
	}

	var res EnhanceResult
	for _, entry := range r.Entries() {
		if entry.UsageCount < minUsage {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		articles := make([]models.DocumentRecord, 0, len(entry.Sources))
		for _, src := range entry.Sources {
			if rec, ok := byFile[src]; ok {
				articles = append(articles, rec)
			}
		}
		if len(articles) == 0 {
			continue
		}
		sort.SliceStable(articles, func(i, j int) bool {
			return articles[i].RelevanceScore > articles[j].RelevanceScore
		})

		res.Considered++
		enhancement, usage, err := enh.EnhanceTag(ctx, entry, articles)
		res.Usage = res.Usage.Add(usage)
		if err != nil {
			res.Failed++
			r.logger.Warn("failed to enhance tag", "tag", entry.Canonical, "err", err)
			continue
		}

		r.mu.Lock()
		if e, ok := r.entries[entry.Canonical]; ok {
			e.EnhancedDefinition = enhancement.Definition
			e.KeyInsights = enhancement.KeyInsights
		}
		r.mu.Unlock()
		res.Enhanced++
		r.logger.Info("enhanced tag", "tag", entry.Canonical, "articles", len(articles), "cost", usage.Cost)
	}
	return res, nil
}
