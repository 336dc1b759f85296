package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-enricher/internal/models"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(filename string, score int, tags ...string) models.DocumentRecord {
	return models.DocumentRecord{
		Filename:        filename,
		Path:            "/papers/" + filename,
		Title:           "Title " + filename,
		Authors:         []string{"Ann Smith"},
		PublicationYear: models.KnownYear(2022),
		DOI:             models.NotFound,
		RelevanceScore:  score,
		Classification:  models.Supportive(),
		Tags:            tags,
		ProcessedAt:     time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
	}
}

func TestSQLiteUpsertAndQueryByTag(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.UpsertRecord(ctx, testRecord("a.pdf", 4, "Number Sense")))
	require.NoError(t, db.UpsertRecord(ctx, testRecord("b.pdf", 9, "number sense", "fractions")))
	require.NoError(t, db.UpsertRecord(ctx, testRecord("c.pdf", 7, "fractions")))

	got, err := db.RecordsByTag(ctx, "NUMBER SENSE")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.pdf", got[0].Filename)
	assert.Equal(t, "a.pdf", got[1].Filename)
	assert.Equal(t, models.CategorySupportive, got[0].Category())
	assert.Equal(t, models.KnownYear(2022), got[0].PublicationYear)
}

func TestSQLiteUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.UpsertRecord(ctx, testRecord("a.pdf", 4, "fractions")))
	updated := testRecord("a.pdf", 10, "fractions")
	updated.Classification = models.Direct(models.Applicability{OneOnOne: "a", SmallGroup: "b", LargeGroup: "c", SelfEducation: "d"})
	updated.PublicationYear = models.Year{}
	require.NoError(t, db.UpsertRecord(ctx, updated))

	got, err := db.RecordsByTag(ctx, "fractions")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].RelevanceScore)
	assert.Equal(t, models.CategoryDirect, got[0].Category())
	assert.False(t, got[0].PublicationYear.Known)

	counts, err := db.CategoryCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Category]int{models.CategoryDirect: 1}, counts)
}

func TestSQLiteUpsertTags(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	entries := []models.TagEntry{
		{Canonical: "Number Sense", TagType: models.TagDirect, Relevance: "core", UsageCount: 2, Sources: []string{"a.pdf", "b.pdf"}},
		{Canonical: "fractions", TagType: models.TagUnknown, UsageCount: 1, Sources: []string{"c.pdf"}},
	}
	require.NoError(t, db.UpsertTags(ctx, entries))

	entries[0].UsageCount = 3
	entries[0].Sources = append(entries[0].Sources, "d.pdf")
	require.NoError(t, db.UpsertTags(ctx, entries))

	n, ok, err := db.TagUsage(ctx, "number sense")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok, err = db.TagUsage(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMirrorsFanOut(t *testing.T) {
	ctx := context.Background()
	first := openTestDB(t)
	second := openTestDB(t)
	ms := Mirrors{first, second}

	require.NoError(t, ms.UpsertRecord(ctx, testRecord("a.pdf", 5, "anxiety")))
	require.NoError(t, ms.UpsertTags(ctx, []models.TagEntry{{Canonical: "anxiety", UsageCount: 1, Sources: []string{"a.pdf"}}}))

	for _, db := range []*SQLite{first, second} {
		got, err := db.RecordsByTag(ctx, "anxiety")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}

	got, err := ms.RecordsByTag(ctx, "ANXIETY")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = Mirrors{}.RecordsByTag(ctx, "anxiety")
	assert.Error(t, err)
}

func TestOpen_NothingConfigured(t *testing.T) {
	ms, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, ms)
	assert.NoError(t, ms.Close())
}

func TestOpen_SQLiteOnly(t *testing.T) {
	ms, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.NoError(t, ms.Close())
}
