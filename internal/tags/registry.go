package tags

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"research-enricher/internal/models"
	"research-enricher/internal/store"
)

// PendingRelevance is stored when a tag could not be explained
const PendingRelevance = "Relevance to dyscalculia research to be determined"

// Explainer classifies a batch of tags in one call
type Explainer interface {
	ExplainTags(ctx context.Context, tags []string, citation string) (map[string]models.TagExplanation, models.Usage, error)
}

// Config configures a Registry
type Config struct {
	Explainer Explainer
	Logger    *slog.Logger
}

// Registry is the case-insensitive tag vocabulary. The first-seen casing of a tag is canonical.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*models.TagEntry
	index   map[string]string // lowercased -> canonical
	usage   models.Usage

	explainer Explainer
	logger    *slog.Logger
}

// New creates an empty registry
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		entries:   make(map[string]*models.TagEntry),
		index:     make(map[string]string),
		explainer: cfg.Explainer,
		logger:    cfg.Logger,
	}
}

// Load reads the registry from path; a missing file yields an empty registry
func Load(path string, cfg Config) (*Registry, error) {
	r := New(cfg)

	var stored map[string]models.TagEntry
	if _, err := store.ReadJSON(path, &stored); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(stored))
	for name := range stored {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := strings.ToLower(name)
		if canonical, dup := r.index[key]; dup {
			// merge case variants written by older runs into the first name
			merged := r.entries[canonical]
			entry := stored[name]
			merged.Sources = union(merged.Sources, entry.Sources)
			merged.UsageCount = len(merged.Sources)
			continue
		}
		entry := stored[name]
		entry.Canonical = name
		entry.Sources = union(nil, entry.Sources)
		if entry.TagType == "" {
			entry.TagType = models.TagUnknown
		}
		if len(entry.Sources) > 0 {
			entry.UsageCount = len(entry.Sources)
		}
		r.entries[name] = &entry
		r.index[key] = name
	}
	return r, nil
}

// Normalize maps raw tags onto canonical forms, records source as a user of each,
// and explains any tags never seen before in a single call.
// Once ctx is done new tags are left pending for ExplainPending.
func (r *Registry) Normalize(ctx context.Context, raw []string, source, citation string) []string {
	canonical, fresh := r.observe(raw, source, citation)
	if len(fresh) == 0 {
		return canonical
	}

	var explanations map[string]models.TagExplanation
	if ctx.Err() == nil {
		explanations = r.explain(ctx, fresh, citation)
	}
	r.apply(fresh, explanations)
	return canonical
}

// ExplainPending retries the explanation of every tag still carrying PendingRelevance,
// one call per introducing document. It returns the number of tags explained.
func (r *Registry) ExplainPending(ctx context.Context) int {
	if r.explainer == nil {
		return 0
	}

	r.mu.Lock()
	groups := make(map[string][]string)
	for name, e := range r.entries {
		if e.Relevance == PendingRelevance {
			groups[e.ResearchSource] = append(groups[e.ResearchSource], name)
		}
	}
	r.mu.Unlock()

	citations := make([]string, 0, len(groups))
	for c := range groups {
		citations = append(citations, c)
	}
	sort.Strings(citations)

	explained := 0
	for _, citation := range citations {
		if ctx.Err() != nil {
			break
		}
		pending := groups[citation]
		sort.Strings(pending)
		explained += r.apply(pending, r.explain(ctx, pending, citation))
	}
	return explained
}

// apply stores explanations for tags, marking the unexplained ones pending
func (r *Registry) apply(tags []string, explanations map[string]models.TagExplanation) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied := 0
	for _, tag := range tags {
		entry, ok := r.entries[tag]
		if !ok {
			continue
		}
		exp, ok := explanations[tag]
		if !ok || strings.TrimSpace(exp.Relevance) == "" {
			entry.Relevance = PendingRelevance
			continue
		}
		entry.TagType = exp.Type
		entry.Relevance = exp.Relevance
		applied++
	}
	return applied
}

func (r *Registry) observe(raw []string, source, citation string) ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var canonical, fresh []string
	emitted := make(map[string]bool)
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)

		name, ok := r.index[key]
		if ok {
			entry := r.entries[name]
			entry.Sources = union(entry.Sources, []string{source})
			entry.UsageCount = len(entry.Sources)
		} else {
			name = tag
			r.entries[name] = &models.TagEntry{
				Canonical:      name,
				TagType:        models.TagUnknown,
				ResearchSource: citation,
				UsageCount:     1,
				Sources:        union(nil, []string{source}),
			}
			r.index[key] = name
			fresh = append(fresh, name)
		}

		if !emitted[name] {
			emitted[name] = true
			canonical = append(canonical, name)
		}
	}
	return canonical, fresh
}

func (r *Registry) explain(ctx context.Context, fresh []string, citation string) map[string]models.TagExplanation {
	if r.explainer == nil {
		return nil
	}
	explanations, usage, err := r.explainer.ExplainTags(ctx, fresh, citation)

	r.mu.Lock()
	r.usage = r.usage.Add(usage)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("failed to explain new tags", "tags", strings.Join(fresh, ", "), "err", err)
		return nil
	}
	r.logger.Debug("explained new tags", "tags", len(fresh), "cost", usage.Cost)
	return explanations
}

// Entry returns a copy of the entry for tag, matched case-insensitively
func (r *Registry) Entry(tag string) (models.TagEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.index[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return models.TagEntry{}, false
	}
	return copyEntry(r.entries[name]), true
}

// Entries returns copies of all entries, most used first
func (r *Registry) Entries() []models.TagEntry {
	r.mu.Lock()
	out := make([]models.TagEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, copyEntry(e))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return strings.ToLower(out[i].Canonical) < strings.ToLower(out[j].Canonical)
	})
	return out
}

// Len returns the number of canonical tags
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Usage returns the accumulated cost of tag explanation calls
func (r *Registry) Usage() models.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Save writes the registry as a JSON object keyed by canonical tag
func (r *Registry) Save(path string) error {
	r.mu.Lock()
	out := make(map[string]models.TagEntry, len(r.entries))
	for name, e := range r.entries {
		out[name] = copyEntry(e)
	}
	r.mu.Unlock()

	if err := store.WriteJSON(path, out, "    "); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}
	return nil
}

// SaveCSV writes the registry as a spreadsheet
func (r *Registry) SaveCSV(path string) error {
	entries := r.Entries()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Canonical,
			string(e.TagType),
			e.Relevance,
			e.ResearchSource,
			strconv.Itoa(e.UsageCount),
			strings.Join(e.Sources, "; "),
			e.EnhancedDefinition,
			e.KeyInsights,
		})
	}
	header := []string{"tag", "tag_type", "relevance_explanation", "research_source", "usage_count", "sources", "enhanced_definition", "key_insights"}
	return store.WriteCSV(path, header, rows)
}

func copyEntry(e *models.TagEntry) models.TagEntry {
	c := *e
	c.Sources = append([]string(nil), e.Sources...)
	return c
}

// union appends the names of add missing from set, keeping set order
func union(set, add []string) []string {
	seen := make(map[string]bool, len(set)+len(add))
	out := make([]string, 0, len(set)+len(add))
	for _, s := range append(append([]string(nil), set...), add...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
