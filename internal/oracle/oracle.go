package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"research-enricher/internal/llm"
	"research-enricher/internal/models"
)

var (
	// ErrMissingField is returned when a reply lacks a field the operation requires
	ErrMissingField = errors.New("missing expected field")
	// ErrInvalidField is returned when a field has an unexpected shape or value
	ErrInvalidField = errors.New("unexpected field shape")
)

const (
	DefaultFactsModel    = "llama3.2:3b"
	DefaultAnalysisModel = "llama3.1:8b"

	defaultFactsMaxTokens    = 500
	defaultAnalysisMaxTokens = 2000
	defaultTagMaxTokens      = 1000
	defaultEnhanceMaxTokens  = 500

	defaultFactsPrefix      = 2000
	defaultAbstractWindow   = 1500
	defaultDiscussionWindow = 2000
	defaultAnalysisPrefix   = 4000
	defaultEnhanceArticles  = 10
)

// Config holds model names, token budgets and input windows for the oracle calls
type Config struct {
	FactsModel    string
	AnalysisModel string
	TagModel      string

	FactsMaxTokens    int
	AnalysisMaxTokens int
	TagMaxTokens      int
	EnhanceMaxTokens  int

	FactsPrefix      int
	AbstractWindow   int
	DiscussionWindow int
	AnalysisPrefix   int
	EnhanceArticles  int

	Pricing llm.Pricing
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.FactsModel == "" {
		c.FactsModel = DefaultFactsModel
	}
	if c.AnalysisModel == "" {
		c.AnalysisModel = DefaultAnalysisModel
	}
	if c.TagModel == "" {
		c.TagModel = c.AnalysisModel
	}
	setDefault(&c.FactsMaxTokens, defaultFactsMaxTokens)
	setDefault(&c.AnalysisMaxTokens, defaultAnalysisMaxTokens)
	setDefault(&c.TagMaxTokens, defaultTagMaxTokens)
	setDefault(&c.EnhanceMaxTokens, defaultEnhanceMaxTokens)
	setDefault(&c.FactsPrefix, defaultFactsPrefix)
	setDefault(&c.AbstractWindow, defaultAbstractWindow)
	setDefault(&c.DiscussionWindow, defaultDiscussionWindow)
	setDefault(&c.AnalysisPrefix, defaultAnalysisPrefix)
	setDefault(&c.EnhanceArticles, defaultEnhanceArticles)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func setDefault(v *int, d int) {
	if *v <= 0 {
		*v = d
	}
}

// Oracle runs the metadata, analysis and tag prompts against a text generator
type Oracle struct {
	gen llm.Generator
	cfg Config
}

// New creates an Oracle over the given generator
func New(gen llm.Generator, cfg Config) *Oracle {
	cfg.defaults()
	return &Oracle{gen: gen, cfg: cfg}
}

// BasicFacts is the bibliographic partial record
type BasicFacts struct {
	Title   string
	Authors []string
	Year    models.Year
	DOI     string
	Usage   models.Usage
}

// ContentAnalysis is the enrichment partial record
type ContentAnalysis struct {
	RelevanceScore int
	Classification models.Classification
	Summary        string
	Tags           []string
	DOI            string
	Usage          models.Usage
}

// Enhancement is a synthesized tag definition built from the articles that use the tag
type Enhancement struct {
	Definition  string
	KeyInsights string
}

// ExtractBasicFacts asks for title, authors, year and DOI from the head of the bundle
func (o *Oracle) ExtractBasicFacts(ctx context.Context, bundle models.SectionBundle) (*BasicFacts, error) {
	prompt := buildBasicFactsPrompt(prefix(bundle.Text, o.cfg.FactsPrefix))
	gen, err := o.call(ctx, o.cfg.FactsModel, prompt, o.cfg.FactsMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to extract basic facts: %w", err)
	}

	fields, err := llm.DecodeJSON(gen.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse basic facts: %w", err)
	}

	facts := &BasicFacts{Usage: o.cfg.Pricing.Usage(gen)}
	if facts.Title, err = requireString(fields, "title"); err != nil {
		return nil, err
	}
	raw, ok := fields["authors"]
	if !ok {
		return nil, fmt.Errorf("%w: authors", ErrMissingField)
	}
	if facts.Authors, err = decodeStrings(raw); err != nil {
		return nil, fmt.Errorf("%w: authors: %v", ErrInvalidField, err)
	}
	raw, ok = fields["publication_year"]
	if !ok {
		return nil, fmt.Errorf("%w: publication_year", ErrMissingField)
	}
	facts.Year = models.ParseYear(raw)
	facts.DOI = optionalString(fields, "doi", models.NotFound)

	facts.Title = llm.DecodeEntities(facts.Title)
	facts.Authors = llm.DecodeAll(facts.Authors)
	facts.DOI = llm.DecodeEntities(facts.DOI)

	o.cfg.Logger.Debug("basic facts extracted", "title", facts.Title, "model", facts.Usage.Model,
		"input_tokens", facts.Usage.InputTokens, "output_tokens", facts.Usage.OutputTokens)
	return facts, nil
}

// AnalyzeContent scores, classifies, summarizes and tags the document
func (o *Oracle) AnalyzeContent(ctx context.Context, bundle models.SectionBundle) (*ContentAnalysis, error) {
	prompt := buildAnalysisPrompt(o.analysisInput(bundle))
	gen, err := o.call(ctx, o.cfg.AnalysisModel, prompt, o.cfg.AnalysisMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze content: %w", err)
	}

	fields, err := llm.DecodeJSON(gen.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content analysis: %w", err)
	}

	analysis := &ContentAnalysis{Usage: o.cfg.Pricing.Usage(gen)}

	raw, ok := fields["relevance_score"]
	if !ok {
		return nil, fmt.Errorf("%w: relevance_score", ErrMissingField)
	}
	if analysis.RelevanceScore, err = decodeScore(raw); err != nil {
		return nil, fmt.Errorf("%w: relevance_score: %v", ErrInvalidField, err)
	}

	category, err := requireString(fields, "research_category")
	if err != nil {
		return nil, err
	}
	switch models.ParseCategory(category) {
	case models.CategoryDirect:
		applicability, err := decodeApplicability(fields)
		if err != nil {
			return nil, err
		}
		analysis.Classification = models.Direct(applicability)
	case models.CategorySupportive:
		analysis.Classification = models.Supportive()
	default:
		return nil, fmt.Errorf("%w: research_category %q", ErrInvalidField, category)
	}

	if analysis.Summary, err = requireString(fields, "summary"); err != nil {
		return nil, err
	}
	analysis.Summary = llm.DecodeEntities(analysis.Summary)

	raw, ok = fields["tags"]
	if !ok {
		return nil, fmt.Errorf("%w: tags", ErrMissingField)
	}
	tags, err := decodeStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: tags: %v", ErrInvalidField, err)
	}
	analysis.Tags = cleanTags(llm.DecodeAll(tags))
	analysis.DOI = llm.DecodeEntities(optionalString(fields, "doi", models.NotFound))

	o.cfg.Logger.Debug("content analyzed", "score", analysis.RelevanceScore,
		"category", analysis.Classification.Category(), "tags", len(analysis.Tags),
		"model", analysis.Usage.Model)
	return analysis, nil
}

// ExplainTags classifies a batch of new tags in one call.
// Tags the reply does not mention are absent from the result.
func (o *Oracle) ExplainTags(ctx context.Context, tags []string, citation string) (map[string]models.TagExplanation, models.Usage, error) {
	if len(tags) == 0 {
		return map[string]models.TagExplanation{}, models.Usage{}, nil
	}

	gen, err := o.call(ctx, o.cfg.TagModel, buildTagPrompt(tags, citation), o.cfg.TagMaxTokens)
	if err != nil {
		return nil, models.Usage{}, fmt.Errorf("failed to explain tags: %w", err)
	}
	usage := o.cfg.Pricing.Usage(gen)

	fields, err := llm.DecodeJSON(gen.Text)
	if err != nil {
		return nil, usage, fmt.Errorf("failed to parse tag explanations: %w", err)
	}

	out := make(map[string]models.TagExplanation, len(tags))
	for _, tag := range tags {
		raw, ok := lookupFold(fields, tag)
		if !ok {
			continue
		}
		if exp, ok := decodeExplanation(raw); ok {
			out[tag] = exp
		}
	}
	return out, usage, nil
}

// EnhanceTag synthesizes a definition for a tag from the records that use it
func (o *Oracle) EnhanceTag(ctx context.Context, entry models.TagEntry, records []models.DocumentRecord) (Enhancement, models.Usage, error) {
	if len(records) == 0 {
		return Enhancement{}, models.Usage{}, fmt.Errorf("no articles use tag %q", entry.Canonical)
	}

	prompt := buildEnhancementPrompt(entry.Canonical, entry.Relevance, records, o.cfg.EnhanceArticles)
	gen, err := o.call(ctx, o.cfg.TagModel, prompt, o.cfg.EnhanceMaxTokens)
	if err != nil {
		return Enhancement{}, models.Usage{}, fmt.Errorf("failed to enhance tag %q: %w", entry.Canonical, err)
	}
	usage := o.cfg.Pricing.Usage(gen)

	fields, err := llm.DecodeJSON(gen.Text)
	if err != nil {
		return Enhancement{}, usage, fmt.Errorf("failed to parse enhancement for %q: %w", entry.Canonical, err)
	}
	definition, err := requireString(fields, "enhanced_definition")
	if err != nil {
		return Enhancement{}, usage, err
	}
	return Enhancement{
		Definition:  llm.DecodeEntities(definition),
		KeyInsights: llm.DecodeEntities(optionalString(fields, "key_insights", "")),
	}, usage, nil
}

func (o *Oracle) call(ctx context.Context, model, prompt string, maxTokens int) (llm.Generation, error) {
	gen, err := o.gen.Generate(ctx, llm.Request{Model: model, Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return llm.Generation{}, err
	}
	if gen.Model == "" {
		gen.Model = model
	}
	return gen, nil
}

// analysisInput prefers the abstract and discussion windows over a flat prefix
func (o *Oracle) analysisInput(bundle models.SectionBundle) string {
	var parts []string
	if bundle.Has(models.SectionAbstract) {
		if w := window(bundle.Text, models.SectionAbstract.Heading(), o.cfg.AbstractWindow); w != "" {
			parts = append(parts, w)
		}
	}
	if bundle.Has(models.SectionDiscussion) {
		if w := window(bundle.Text, models.SectionDiscussion.Heading(), o.cfg.DiscussionWindow); w != "" {
			parts = append(parts, w)
		}
	}
	if len(parts) == 0 {
		return prefix(bundle.Text, o.cfg.AnalysisPrefix)
	}
	return strings.Join(parts, "\n\n")
}

func window(text, heading string, n int) string {
	idx := strings.Index(text, heading)
	if idx == -1 {
		return ""
	}
	return prefix(text[idx:], n)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func requireString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingField, key)
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, key, fallback string) string {
	raw, ok := fields[key]
	if !ok {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}

// decodeStrings accepts an array of strings or a single string
func decodeStrings(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	if strings.TrimSpace(single) == "" {
		return []string{}, nil
	}
	return []string{single}, nil
}

// decodeScore accepts a number or a numeric string and clamps it to 0-10
func decodeScore(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	switch {
	case math.IsNaN(f):
		return 0, fmt.Errorf("%w: relevance_score is NaN", ErrInvalidField)
	case f < 0:
		f = 0
	case f > 10:
		f = 10
	}
	return int(math.Round(f)), nil
}

func decodeApplicability(fields map[string]json.RawMessage) (models.Applicability, error) {
	var a models.Applicability
	targets := []struct {
		key string
		dst *string
	}{
		{"one_on_one_applicability", &a.OneOnOne},
		{"small_group_applicability", &a.SmallGroup},
		{"large_group_applicability", &a.LargeGroup},
		{"self_education_applicability", &a.SelfEducation},
	}
	for _, t := range targets {
		v, err := requireString(fields, t.key)
		if err != nil {
			return a, err
		}
		if strings.EqualFold(v, models.NotApplicable) {
			return a, fmt.Errorf("%w: %s is n/a for a direct article", ErrMissingField, t.key)
		}
		*t.dst = llm.DecodeEntities(v)
	}
	return a, nil
}

// decodeExplanation tolerates {tag_type, relevance} objects and bare strings
func decodeExplanation(raw json.RawMessage) (models.TagExplanation, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return models.TagExplanation{}, false
		}
		return models.TagExplanation{Type: models.TagUnknown, Relevance: llm.DecodeEntities(text)}, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.TagExplanation{}, false
	}
	kind := firstString(obj, "tag_type", "type")
	relevance := firstString(obj, "relevance", "dyscalculia_relevance", "relevance_explanation")
	if kind == "" && relevance == "" {
		return models.TagExplanation{}, false
	}
	return models.TagExplanation{
		Type:      models.ParseTagType(kind),
		Relevance: llm.DecodeEntities(relevance),
	}, true
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s := optionalString(obj, k, ""); s != "" {
			return s
		}
	}
	return ""
}

func lookupFold(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if raw, ok := fields[key]; ok {
		return raw, true
	}
	for k, raw := range fields {
		if strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(key)) {
			return raw, true
		}
	}
	return nil, false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
