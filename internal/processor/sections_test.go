package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-enricher/internal/models"
)

func newTestExtractor(t *testing.T, reader PageReader) (*SectionExtractor, string) {
	t.Helper()
	root := t.TempDir()
	return NewSectionExtractor(Config{AllowedRoot: root, ReadPages: reader}), root
}

func writeDoc(t *testing.T, dir, name string) models.Document {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return models.Document{Filename: name, Path: path}
}

func TestExtractPages_DetectsStructuredSections(t *testing.T) {
	e := NewSectionExtractor(Config{})
	pages := []string{
		"Number Sense in Early Grades\nJ. Smith, A. Jones\n2023\n" +
			"Abstract: This study examines dyscalculia in children. We followed 120 pupils across two school years.\n" +
			"Introduction: Math disorders affect between three and seven percent of children worldwide.",
		"Discussion: results show improvement in magnitude comparison after the training programme ended.\n" +
			"These findings support early screening.",
	}

	bundle := e.ExtractPages(pages)

	assert.False(t, bundle.Fallback)
	assert.True(t, bundle.Has(models.SectionAbstract))
	assert.True(t, bundle.Has(models.SectionIntroduction))
	assert.True(t, bundle.Has(models.SectionDiscussion))
	assert.Subset(t, bundle.Labels(), []string{"Abstract", "Introduction", "Discussion/Conclusion"})
	assert.Equal(t, models.SectionHeader, bundle.Found[0])
	assert.Contains(t, bundle.Text, "ABSTRACT:\nAbstract: This study examines dyscalculia")
	assert.Contains(t, bundle.Text, "DISCUSSION/CONCLUSION:\n")
}

func TestExtractPages_FallbackWhenNoMarkers(t *testing.T) {
	e := NewSectionExtractor(Config{})
	body := strings.Repeat("counting dots and comparing quantities ", 400)

	bundle := e.ExtractPages([]string{body})

	require.True(t, bundle.Fallback)
	assert.Equal(t, []models.SectionKey{models.SectionFallback}, bundle.Found)
	assert.Len(t, bundle.Labels(), 1)
	assert.Equal(t, DefaultTotalCap, utf8.RuneCountInString(bundle.Text))
	assert.True(t, strings.HasPrefix(body, bundle.Text))
	assert.False(t, bundle.IsEmpty())
}

func TestExtractPages_ShortTextFallbackKeepsEverything(t *testing.T) {
	e := NewSectionExtractor(Config{})

	bundle := e.ExtractPages([]string{"A short note on arithmetic"})

	require.True(t, bundle.Fallback)
	assert.Equal(t, "A short note on arithmetic\n", bundle.Text)
}

func TestExtractPages_RespectsCaps(t *testing.T) {
	filler := strings.Repeat("x", 5000)
	page := "Title line\n" +
		"Abstract " + filler + "\n" +
		"Introduction " + filler + "\n" +
		"Discussion " + filler + "\nlast\nlines\nhere"

	for _, total := range []int{DefaultTotalCap, 3000} {
		e := NewSectionExtractor(Config{TotalCap: total})
		bundle := e.ExtractPages([]string{page})

		require.False(t, bundle.Fallback)
		assert.LessOrEqual(t, utf8.RuneCountInString(bundle.Text), total)

		caps := map[models.SectionKey]int{
			models.SectionHeader:       headerLength,
			models.SectionFooter:       footerCap,
			models.SectionAbstract:     1500,
			models.SectionIntroduction: 2000,
			models.SectionDiscussion:   2000,
		}
		for key, text := range bundle.Sections {
			assert.LessOrEqual(t, utf8.RuneCountInString(text), caps[key], "section %s", key)
		}
	}
}

func TestExtractPages_CutsAtNextSection(t *testing.T) {
	e := NewSectionExtractor(Config{})
	abstract := "ABSTRACT We describe a screening tool for arithmetic difficulties in primary school."
	page := abstract + "\nMethods\nParticipants were recruited from five schools."

	bundle := e.ExtractPages([]string{page})

	require.True(t, bundle.Has(models.SectionAbstract))
	assert.Equal(t, abstract, bundle.Sections[models.SectionAbstract])
}

func TestExtractPages_IgnoresMarkerInsideSkipWindow(t *testing.T) {
	e := NewSectionExtractor(Config{})
	page := "Abstract: results of a pilot are discussed here, and the remainder of this abstract keeps going on."

	bundle := e.ExtractPages([]string{page})

	require.True(t, bundle.Has(models.SectionAbstract))
	assert.Contains(t, bundle.Sections[models.SectionAbstract], "results of a pilot")
}

func TestExtractPages_FooterFromFirstPages(t *testing.T) {
	e := NewSectionExtractor(Config{})
	pages := []string{
		"Title\nAbstract text about number sense\nbody\nJournal of Learning 12(3)\ndoi:10.1000/xyz\npage 1",
		"body\nmore body\nintroduction here\nfooter a\nfooter b\nfooter c",
		"short",
		"body\nbody\nbody\nnot\nin\nfooter",
	}

	bundle := e.ExtractPages(pages)

	footer := bundle.Sections[models.SectionFooter]
	assert.Contains(t, footer, "doi:10.1000/xyz")
	assert.Contains(t, footer, "footer c")
	assert.NotContains(t, footer, "short")
	assert.NotContains(t, footer, "not in footer")
}

func TestExtractPages_MaxPages(t *testing.T) {
	e := NewSectionExtractor(Config{MaxPages: 1})

	bundle := e.ExtractPages([]string{"first page only", "Abstract on page two"})

	assert.True(t, bundle.Fallback)
	assert.NotContains(t, bundle.Text, "page two")
	assert.Equal(t, 1, bundle.PageCount)
}

func TestExtractPages_EmptyText(t *testing.T) {
	e := NewSectionExtractor(Config{})

	bundle := e.ExtractPages([]string{"", "  \n "})

	assert.True(t, bundle.IsEmpty())
	assert.Empty(t, bundle.Found)
	assert.Zero(t, bundle.PageCount)
}

func TestExtract_UsesPageReader(t *testing.T) {
	var gotMax int
	e, root := newTestExtractor(t, func(path string, maxPages int) ([]string, error) {
		gotMax = maxPages
		return []string{"Abstract: dyscalculia screening in grade one"}, nil
	})
	doc := writeDoc(t, root, "paper.pdf")

	bundle := e.Extract(context.Background(), doc)

	assert.Equal(t, DefaultMaxPages, gotMax)
	assert.True(t, bundle.Has(models.SectionAbstract))
	assert.Equal(t, 1, bundle.PageCount)
}

func TestExtract_ReaderErrorYieldsEmptyBundle(t *testing.T) {
	e, root := newTestExtractor(t, func(string, int) ([]string, error) {
		return nil, errors.New("corrupt xref table")
	})
	doc := writeDoc(t, root, "broken.pdf")

	bundle := e.Extract(context.Background(), doc)

	assert.True(t, bundle.IsEmpty())
}

func TestExtract_RefusesPathOutsideRoot(t *testing.T) {
	called := false
	e, _ := newTestExtractor(t, func(string, int) ([]string, error) {
		called = true
		return []string{"secret"}, nil
	})
	outside := writeDoc(t, t.TempDir(), "outside.pdf")

	bundle := e.Extract(context.Background(), outside)

	assert.True(t, bundle.IsEmpty())
	assert.False(t, called)
}

func TestSafePath(t *testing.T) {
	root := t.TempDir()
	inside := writeDoc(t, root, "in.pdf")
	outsideDir := t.TempDir()
	outside := writeDoc(t, outsideDir, "out.pdf")

	got, err := SafePath(root, inside.Path)
	require.NoError(t, err)
	assert.Equal(t, "in.pdf", filepath.Base(got))

	_, err = SafePath(root, outside.Path)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = SafePath(root, filepath.Join(root, "..", filepath.Base(outsideDir), "out.pdf"))
	assert.ErrorIs(t, err, ErrAccessDenied)

	link := filepath.Join(root, "link.pdf")
	if err := os.Symlink(outside.Path, link); err == nil {
		_, err = SafePath(root, link)
		assert.ErrorIs(t, err, ErrAccessDenied)
	}

	_, err = SafePath(root, root)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestTruncateCountsCharacters(t *testing.T) {
	assert.Equal(t, "éé", truncate("ééé", 2))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "", truncate("abc", 0))
}
