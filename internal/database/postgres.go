package database

import (
	"context"
	"encoding/json"
	"fmt"

	"research-enricher/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB represents the database connection
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize sets up the database tables and indices
func (db *DB) Initialize(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS research_records (
            filename TEXT PRIMARY KEY,
            file_path TEXT NOT NULL,
            title TEXT,
            authors TEXT[],
            publication_year INTEGER,
            doi TEXT,
            relevance_score INTEGER NOT NULL,
            research_category TEXT NOT NULL,
            summary TEXT,
            tags TEXT[],
            input_tokens INTEGER,
            output_tokens INTEGER,
            estimated_cost DOUBLE PRECISION,
            model_used TEXT,
            processed_date TIMESTAMPTZ,
            run_id TEXT,
            record JSONB NOT NULL
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create research_records table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS research_tags (
            tag TEXT PRIMARY KEY,
            tag_type TEXT,
            relevance_explanation TEXT,
            research_source TEXT,
            usage_count INTEGER NOT NULL,
            sources TEXT[],
            enhanced_definition TEXT,
            key_insights TEXT
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create research_tags table: %w", err)
	}

	// Create indices for better query performance
	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS research_records_tags_idx ON research_records USING GIN (tags);
		CREATE INDEX IF NOT EXISTS research_records_category_idx ON research_records (research_category);
	`)
	if err != nil {
		return fmt.Errorf("failed to create additional indices: %w", err)
	}

	return nil
}

// UpsertRecord stores a record, replacing any earlier version for the same filename
func (db *DB) UpsertRecord(ctx context.Context, rec models.DocumentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.Filename, err)
	}

	_, err = db.Pool.Exec(ctx, `
        INSERT INTO research_records (
            filename, file_path, title, authors, publication_year, doi,
            relevance_score, research_category, summary, tags,
            input_tokens, output_tokens, estimated_cost, model_used,
            processed_date, run_id, record
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        ON CONFLICT (filename) DO UPDATE SET
            file_path = EXCLUDED.file_path,
            title = EXCLUDED.title,
            authors = EXCLUDED.authors,
            publication_year = EXCLUDED.publication_year,
            doi = EXCLUDED.doi,
            relevance_score = EXCLUDED.relevance_score,
            research_category = EXCLUDED.research_category,
            summary = EXCLUDED.summary,
            tags = EXCLUDED.tags,
            input_tokens = EXCLUDED.input_tokens,
            output_tokens = EXCLUDED.output_tokens,
            estimated_cost = EXCLUDED.estimated_cost,
            model_used = EXCLUDED.model_used,
            processed_date = EXCLUDED.processed_date,
            run_id = EXCLUDED.run_id,
            record = EXCLUDED.record
    `,
		rec.Filename,
		rec.Path,
		rec.Title,
		rec.Authors,
		yearValue(rec.PublicationYear),
		rec.DOI,
		rec.RelevanceScore,
		string(rec.Category()),
		rec.Summary,
		rec.Tags,
		rec.InputTokens,
		rec.OutputTokens,
		rec.EstimatedCost,
		rec.ModelUsed,
		rec.ProcessedAt,
		rec.RunID,
		string(raw))
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.Filename, err)
	}
	return nil
}

// UpsertTags stores every tag entry in one batch
func (db *DB) UpsertTags(ctx context.Context, entries []models.TagEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
            INSERT INTO research_tags (
                tag, tag_type, relevance_explanation, research_source,
                usage_count, sources, enhanced_definition, key_insights
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (tag) DO UPDATE SET
                tag_type = EXCLUDED.tag_type,
                relevance_explanation = EXCLUDED.relevance_explanation,
                research_source = EXCLUDED.research_source,
                usage_count = EXCLUDED.usage_count,
                sources = EXCLUDED.sources,
                enhanced_definition = EXCLUDED.enhanced_definition,
                key_insights = EXCLUDED.key_insights
        `,
			e.Canonical,
			string(e.TagType),
			e.Relevance,
			e.ResearchSource,
			e.UsageCount,
			e.Sources,
			e.EnhancedDefinition,
			e.KeyInsights)
	}

	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert tags: %w", err)
	}
	return nil
}

// RecordsByTag finds records carrying a tag, matched case-insensitively
func (db *DB) RecordsByTag(ctx context.Context, tag string) ([]models.DocumentRecord, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT record
        FROM research_records
        WHERE EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE lower(t) = lower($1))
        ORDER BY relevance_score DESC, filename
    `, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by tag: %w", err)
	}
	return processRows(rows)
}

func processRows(rows pgx.Rows) ([]models.DocumentRecord, error) {
	defer rows.Close()

	var records []models.DocumentRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var rec models.DocumentRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}
