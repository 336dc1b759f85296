package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"research-enricher/internal/models"
)

// SQLite mirrors records into a local database file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS research_records (
	filename TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	title TEXT,
	authors TEXT,
	publication_year INTEGER,
	doi TEXT,
	relevance_score INTEGER NOT NULL,
	research_category TEXT NOT NULL,
	summary TEXT,
	tags TEXT,
	estimated_cost REAL,
	processed_date TEXT,
	run_id TEXT,
	record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS research_records_category_idx ON research_records(research_category);

CREATE TABLE IF NOT EXISTS research_tags (
	tag TEXT PRIMARY KEY COLLATE NOCASE,
	tag_type TEXT,
	relevance_explanation TEXT,
	research_source TEXT,
	usage_count INTEGER NOT NULL,
	sources TEXT,
	enhanced_definition TEXT,
	key_insights TEXT
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertRecord stores a record, replacing any earlier version for the same filename
func (s *SQLite) UpsertRecord(ctx context.Context, rec models.DocumentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.Filename, err)
	}
	authors, err := json.Marshal(nonNil(rec.Authors))
	if err != nil {
		return err
	}
	tags, err := json.Marshal(nonNil(rec.Tags))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO research_records (
	filename, file_path, title, authors, publication_year, doi,
	relevance_score, research_category, summary, tags,
	estimated_cost, processed_date, run_id, record
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(filename) DO UPDATE SET
	file_path=excluded.file_path,
	title=excluded.title,
	authors=excluded.authors,
	publication_year=excluded.publication_year,
	doi=excluded.doi,
	relevance_score=excluded.relevance_score,
	research_category=excluded.research_category,
	summary=excluded.summary,
	tags=excluded.tags,
	estimated_cost=excluded.estimated_cost,
	processed_date=excluded.processed_date,
	run_id=excluded.run_id,
	record=excluded.record;
`,
		rec.Filename,
		rec.Path,
		rec.Title,
		string(authors),
		yearValue(rec.PublicationYear),
		rec.DOI,
		rec.RelevanceScore,
		string(rec.Category()),
		rec.Summary,
		string(tags),
		rec.EstimatedCost,
		rec.ProcessedAt.UTC().Format(time.RFC3339),
		rec.RunID,
		string(raw))
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.Filename, err)
	}
	return nil
}

// UpsertTags stores every tag entry in one transaction
func (s *SQLite) UpsertTags(ctx context.Context, entries []models.TagEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tag upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO research_tags (
	tag, tag_type, relevance_explanation, research_source,
	usage_count, sources, enhanced_definition, key_insights
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(tag) DO UPDATE SET
	tag_type=excluded.tag_type,
	relevance_explanation=excluded.relevance_explanation,
	research_source=excluded.research_source,
	usage_count=excluded.usage_count,
	sources=excluded.sources,
	enhanced_definition=excluded.enhanced_definition,
	key_insights=excluded.key_insights;
`)
	if err != nil {
		return fmt.Errorf("failed to prepare tag upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		sources, err := json.Marshal(nonNil(e.Sources))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.Canonical, string(e.TagType), e.Relevance, e.ResearchSource,
			e.UsageCount, string(sources), e.EnhancedDefinition, e.KeyInsights); err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", e.Canonical, err)
		}
	}
	return tx.Commit()
}

// RecordsByTag finds records carrying a tag, matched case-insensitively
func (s *SQLite) RecordsByTag(ctx context.Context, tag string) ([]models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT record FROM research_records
WHERE EXISTS (SELECT 1 FROM json_each(research_records.tags) WHERE lower(json_each.value) = lower(?))
ORDER BY relevance_score DESC, filename
`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by tag: %w", err)
	}
	defer rows.Close()

	var records []models.DocumentRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var rec models.DocumentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CategoryCounts returns the number of records per research category
func (s *SQLite) CategoryCounts(ctx context.Context) (map[models.Category]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT research_category, COUNT(*) FROM research_records GROUP BY research_category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[models.Category(cat)] = n
	}
	return counts, rows.Err()
}

// TagUsage returns the stored usage count of a tag
func (s *SQLite) TagUsage(ctx context.Context, tag string) (int, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT usage_count FROM research_tags WHERE tag = ?`, tag).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
