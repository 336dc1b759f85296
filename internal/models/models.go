package models

import (
	"strings"
	"time"
)

// Document represents a source PDF discovered in the input directory
type Document struct {
	Filename  string `json:"filename"`
	Path      string `json:"file_path"`
	PageCount int    `json:"page_count,omitempty"`
}

// SectionKey identifies a labeled text window inside a SectionBundle
type SectionKey string

const (
	SectionHeader       SectionKey = "header"
	SectionFooter       SectionKey = "footer"
	SectionAbstract     SectionKey = "abstract"
	SectionIntroduction SectionKey = "introduction"
	SectionDiscussion   SectionKey = "discussion_conclusion"
	SectionFallback     SectionKey = "fallback"
)

// Label returns the human readable label recorded in sections_analyzed
func (k SectionKey) Label() string {
	switch k {
	case SectionHeader:
		return "Header/Title"
	case SectionFooter:
		return "Footer"
	case SectionAbstract:
		return "Abstract"
	case SectionIntroduction:
		return "Introduction"
	case SectionDiscussion:
		return "Discussion/Conclusion"
	case SectionFallback:
		return "No structured sections detected"
	default:
		return string(k)
	}
}

// Heading returns the all-caps heading written before the section text
func (k SectionKey) Heading() string {
	switch k {
	case SectionHeader:
		return "HEADER/TITLE SECTION:"
	case SectionFooter:
		return "FOOTER SECTION:"
	case SectionDiscussion:
		return "DISCUSSION/CONCLUSION:"
	default:
		return strings.ToUpper(string(k)) + ":"
	}
}

// SectionBundle is the bounded text extracted from one document
type SectionBundle struct {
	Sections map[SectionKey]string `json:"sections"`
	Found    []SectionKey          `json:"found"`
	Text     string                `json:"text"`
	Fallback bool                  `json:"fallback"`

	// PageCount is the number of pages read, at most the max-pages cap
	PageCount int `json:"page_count"`
}

// IsEmpty reports whether nothing could be extracted
func (b SectionBundle) IsEmpty() bool {
	return strings.TrimSpace(b.Text) == ""
}

// Has reports whether the section was detected
func (b SectionBundle) Has(key SectionKey) bool {
	_, ok := b.Sections[key]
	return ok
}

// Labels returns the labels of the detected sections in detection order
func (b SectionBundle) Labels() []string {
	labels := make([]string, 0, len(b.Found))
	for _, k := range b.Found {
		labels = append(labels, k.Label())
	}
	return labels
}

// Usage is the accounting of one call to the text-generation service
type Usage struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add returns the sum of two usages; the model names are joined
func (u Usage) Add(o Usage) Usage {
	model := u.Model
	switch {
	case model == "":
		model = o.Model
	case o.Model != "" && o.Model != model:
		model = model + " + " + o.Model
	}
	return Usage{
		Model:        model,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		Cost:         u.Cost + o.Cost,
	}
}

// DocumentRecord is the enriched, persisted result for one document
type DocumentRecord struct {
	Filename  string `json:"filename"`
	Path      string `json:"file_path"`
	PageCount int    `json:"page_count,omitempty"`

	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	PublicationYear Year     `json:"publication_year"`
	DOI             string   `json:"doi"`

	RelevanceScore int            `json:"relevance_score"`
	Classification Classification `json:"-"`
	Summary        string         `json:"summary"`
	Tags           []string       `json:"tags"`

	FactsUsage       Usage     `json:"facts_usage"`
	AnalysisUsage    *Usage    `json:"analysis_usage,omitempty"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	SectionsAnalyzed []string  `json:"sections_analyzed"`
	ModelUsed        string    `json:"model_used"`
	ProcessedAt      time.Time `json:"processed_date"`
	RunID            string    `json:"run_id,omitempty"`
}

// Category returns the research category of the record
func (r DocumentRecord) Category() Category {
	return r.Classification.Category()
}

// Citation returns "LastName, year, title" for the record
func (r DocumentRecord) Citation() string {
	return r.FirstAuthorLastName() + ", " + r.PublicationYear.String() + ", " + orUnknown(r.Title)
}

// FirstAuthorLastName returns the last word of the first author, or "Unknown"
func (r DocumentRecord) FirstAuthorLastName() string {
	if len(r.Authors) == 0 {
		return "Unknown"
	}
	fields := strings.Fields(r.Authors[0])
	if len(fields) == 0 {
		return "Unknown"
	}
	return fields[len(fields)-1]
}

// HasTag reports whether the record carries the tag (case-insensitive)
func (r DocumentRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// TagType classifies a tag in the registry
type TagType string

const (
	TagDirect     TagType = "direct"
	TagSupportive TagType = "supportive"
	TagUnknown    TagType = "unknown"
)

// ParseTagType maps a free-form oracle answer to a TagType
func ParseTagType(s string) TagType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct":
		return TagDirect
	case "supportive":
		return TagSupportive
	default:
		return TagUnknown
	}
}

// TagEntry is one canonical tag in the registry
type TagEntry struct {
	Canonical          string   `json:"-"`
	TagType            TagType  `json:"tag_type"`
	Relevance          string   `json:"relevance_explanation"`
	ResearchSource     string   `json:"research_source"`
	UsageCount         int      `json:"usage_count"`
	Sources            []string `json:"sources"`
	EnhancedDefinition string   `json:"enhanced_definition,omitempty"`
	KeyInsights        string   `json:"key_insights,omitempty"`
}

// TagExplanation is the oracle's answer for one new tag
type TagExplanation struct {
	Type      TagType
	Relevance string
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
