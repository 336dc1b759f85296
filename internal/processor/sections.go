package processor

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"research-enricher/internal/models"
)

const (
	// DefaultMaxPages is the number of pages read from each document
	DefaultMaxPages = 15
	// DefaultTotalCap bounds the concatenated bundle text
	DefaultTotalCap = 8000

	headerLength = 1000
	footerPages  = 3
	footerLines  = 3
	footerCap    = 500

	// next-section markers are searched past the current marker plus this offset
	markerSkip = 50
)

// sectionRule describes how one structured section is located
type sectionRule struct {
	key     models.SectionKey
	markers []string
	maxLen  int
}

var sectionRules = []sectionRule{
	{key: models.SectionAbstract, markers: []string{"abstract", "summary"}, maxLen: 1500},
	{key: models.SectionIntroduction, markers: []string{"introduction", "1. introduction", "1 introduction"}, maxLen: 2000},
	{key: models.SectionDiscussion, markers: []string{"discussion", "conclusion", "conclusions", "implications", "limitations"}, maxLen: 2000},
}

var nextSectionMarkers = []string{"method", "results", "discussion", "conclusion", "references", "acknowledgment"}

// Config configures the section extractor
type Config struct {
	// AllowedRoot is the directory every document must resolve into
	AllowedRoot string
	MaxPages    int
	TotalCap    int

	ReadPages PageReader
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.TotalCap <= 0 {
		c.TotalCap = DefaultTotalCap
	}
	if c.ReadPages == nil {
		c.ReadPages = ReadPDFPages
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SectionExtractor pulls bounded, labeled text windows out of documents
type SectionExtractor struct {
	cfg Config
}

// NewSectionExtractor creates a new section extractor
func NewSectionExtractor(cfg Config) *SectionExtractor {
	cfg.defaults()
	return &SectionExtractor{cfg: cfg}
}

// Extract reads the document and returns its section bundle.
// Failures are logged and yield an empty bundle.
func (e *SectionExtractor) Extract(ctx context.Context, doc models.Document) models.SectionBundle {
	if err := ctx.Err(); err != nil {
		return models.SectionBundle{}
	}

	path, err := SafePath(e.cfg.AllowedRoot, doc.Path)
	if err != nil {
		e.cfg.Logger.Error("refusing to read document", "file", doc.Filename, "err", err)
		return models.SectionBundle{}
	}

	pages, err := e.cfg.ReadPages(path, e.cfg.MaxPages)
	if err != nil {
		e.cfg.Logger.Error("failed to read document", "file", doc.Filename, "err", err)
		return models.SectionBundle{}
	}

	bundle := e.ExtractPages(pages)
	e.cfg.Logger.Debug("extracted sections", "file", doc.Filename, "pages", len(pages), "sections", bundle.Labels())
	return bundle
}

// ExtractPages builds the section bundle from already extracted page texts
func (e *SectionExtractor) ExtractPages(pages []string) models.SectionBundle {
	if len(pages) > e.cfg.MaxPages {
		pages = pages[:e.cfg.MaxPages]
	}

	var full, footer strings.Builder
	for i, page := range pages {
		full.WriteString(page)
		full.WriteString("\n")

		if i < footerPages {
			lines := strings.Split(page, "\n")
			if len(lines) > footerLines {
				footer.WriteString(strings.Join(lines[len(lines)-footerLines:], " "))
				footer.WriteString(" ")
			}
		}
	}

	bundle := e.extractSections(full.String(), footer.String())
	if !bundle.IsEmpty() {
		bundle.PageCount = len(pages)
	}
	return bundle
}

func (e *SectionExtractor) extractSections(fullText, footerText string) models.SectionBundle {
	bundle := models.SectionBundle{Sections: make(map[models.SectionKey]string)}
	if strings.TrimSpace(fullText) == "" {
		return bundle
	}

	add := func(key models.SectionKey, text string) {
		bundle.Sections[key] = text
		bundle.Found = append(bundle.Found, key)
	}

	add(models.SectionHeader, truncate(fullText, headerLength))
	if strings.TrimSpace(footerText) != "" {
		add(models.SectionFooter, truncate(footerText, footerCap))
	}

	structured := 0
	for _, rule := range sectionRules {
		if text, ok := findSection(fullText, rule.markers, rule.maxLen); ok {
			add(rule.key, text)
			structured++
		}
	}

	if structured == 0 {
		text := truncate(fullText, e.cfg.TotalCap)
		return models.SectionBundle{
			Sections: map[models.SectionKey]string{models.SectionFallback: text},
			Found:    []models.SectionKey{models.SectionFallback},
			Text:     text,
			Fallback: true,
		}
	}

	parts := make([]string, 0, len(bundle.Found))
	for _, key := range bundle.Found {
		parts = append(parts, key.Heading()+"\n"+bundle.Sections[key])
	}
	bundle.Text = truncate(strings.Join(parts, "\n\n"), e.cfg.TotalCap)

	return bundle
}

// findSection returns the window starting at the first marker found, cut at the next section
func findSection(text string, markers []string, maxLen int) (string, bool) {
	for _, marker := range markers {
		start := indexFold(text, marker, 0)
		if start == -1 {
			continue
		}

		window := truncate(text[start:], maxLen)

		cut := -1
		for _, next := range nextSectionMarkers {
			pos := indexFold(window, next, len(marker)+markerSkip)
			if pos != -1 && (cut == -1 || pos < cut) {
				cut = pos
			}
		}
		if cut != -1 {
			window = window[:cut]
		}

		window = strings.TrimSpace(window)
		if window == "" {
			continue
		}
		return window, true
	}
	return "", false
}

// indexFold finds an ASCII marker in s case-insensitively, starting at byte offset from
func indexFold(s, marker string, from int) int {
	if from < 0 {
		from = 0
	}
	n := len(marker)
	for i := from; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], marker) {
			return i
		}
	}
	return -1
}

// truncate returns at most n characters of s
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
