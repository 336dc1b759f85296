package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-enricher/internal/models"
)

func record(filename, author string, year int) models.DocumentRecord {
	return models.DocumentRecord{
		Filename:        filename,
		Path:            "/papers/" + filename,
		Title:           "Title of " + filename,
		Authors:         []string{author},
		PublicationYear: models.KnownYear(year),
		DOI:             models.NotFound,
		RelevanceScore:  6,
		Classification:  models.Supportive(),
		Summary:         "summary",
		Tags:            []string{"number sense"},
		ProcessedAt:     time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "research_metadata.json"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())
	assert.False(t, s.Has("a.pdf"))
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte("[{not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestPutReplacesByFilename(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "r.json"))
	require.NoError(t, err)

	s.Put(record("a.pdf", "Ann Smith", 2020))
	s.Put(record("b.pdf", "Bo Li", 2021))
	updated := record("a.pdf", "Ann Smith", 2020)
	updated.RelevanceScore = 9
	s.Put(updated)

	assert.Equal(t, 2, s.Len())
	got, ok := s.Get("a.pdf")
	require.True(t, ok)
	assert.Equal(t, 9, got.RelevanceScore)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, s.Filenames())
	assert.Equal(t, "a.pdf", s.Records()[0].Filename)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	s, err := Open(path)
	require.NoError(t, err)

	direct := record("d.pdf", "Dee Jones", 2019)
	direct.Classification = models.Direct(models.Applicability{
		OneOnOne: "a", SmallGroup: "b", LargeGroup: "c", SelfEducation: "d",
	})
	unknown := record("u.pdf", "Uma Ray", 2018)
	unknown.Classification = models.Unclassified()
	unknown.PublicationYear = models.Year{}

	s.Put(direct)
	s.Put(unknown)
	require.NoError(t, s.Save())

	reloaded, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())

	got, _ := reloaded.Get("d.pdf")
	assert.Equal(t, models.CategoryDirect, got.Category())
	assert.Equal(t, "c", got.Classification.Applicability().LargeGroup)

	got, _ = reloaded.Get("u.pdf")
	assert.Equal(t, models.CategoryUnknown, got.Category())
	assert.False(t, got.PublicationYear.Known)
	assert.Equal(t, models.NotApplicable, got.Classification.Applicability().OneOnOne)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWithTag(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "r.json"))
	require.NoError(t, err)

	low := record("low.pdf", "A B", 2020)
	low.RelevanceScore = 3
	high := record("high.pdf", "C D", 2021)
	high.RelevanceScore = 9
	other := record("other.pdf", "E F", 2022)
	other.Tags = []string{"fractions"}
	s.Put(low)
	s.Put(high)
	s.Put(other)

	got := s.WithTag("Number Sense")
	require.Len(t, got, 2)
	assert.Equal(t, "high.pdf", got[0].Filename)
	assert.Equal(t, "low.pdf", got[1].Filename)
}

func TestAcademicNames(t *testing.T) {
	records := []models.DocumentRecord{
		record("1.pdf", "Ann Smith", 2020),
		record("2.pdf", "Bo Li", 2021),
		record("3.pdf", "Carl Smith", 2020),
		record("4.pdf", "Dee smith", 2020),
		{Filename: "5.pdf"},
	}
	assert.Equal(t, []string{"Smith2020a", "Li2021", "Smith2020b", "smith2020c", "UnknownUnknown"}, AcademicNames(records))

	assert.Equal(t, "a", suffix(0))
	assert.Equal(t, "z", suffix(25))
	assert.Equal(t, "aa", suffix(26))
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "r.json"))
	require.NoError(t, err)
	rec := record("a.pdf", "Ann Smith", 2020)
	rec.Authors = []string{"Ann Smith", "Bo Li"}
	rec.Tags = []string{"number sense", "working memory"}
	s.Put(rec)

	csvPath := filepath.Join(dir, "research_metadata.csv")
	require.NoError(t, s.ExportCSV(csvPath))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, recordColumns, rows[0])
	assert.Equal(t, "Smith2020", rows[1][0])
	assert.Equal(t, "Ann Smith; Bo Li", rows[1][3])
	assert.Equal(t, "supportive", rows[1][7])
	assert.Equal(t, models.NotApplicable, rows[1][9])
	assert.Equal(t, "number sense; working memory", rows[1][13])
	assert.Equal(t, "2026-03-04T05:06:07", rows[1][19])
}

func TestExportCSV_Locked(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "r.json"))
	require.NoError(t, err)
	s.Put(record("a.pdf", "Ann Smith", 2020))

	csvPath := filepath.Join(dir, "locked.csv")
	require.NoError(t, os.WriteFile(csvPath, nil, 0o444))

	err = s.ExportCSV(csvPath)
	assert.ErrorIs(t, err, ErrLocked)
}
