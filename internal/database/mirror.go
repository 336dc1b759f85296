package database

import (
	"context"
	"errors"
	"fmt"

	"research-enricher/internal/models"
)

// Mirror receives a copy of every persisted record and the tag registry.
// The JSON result set stays the source of truth; mirrors serve queries.
type Mirror interface {
	UpsertRecord(ctx context.Context, rec models.DocumentRecord) error
	UpsertTags(ctx context.Context, entries []models.TagEntry) error
	RecordsByTag(ctx context.Context, tag string) ([]models.DocumentRecord, error)
	Close() error
}

// Mirrors fans writes out to several mirrors
type Mirrors []Mirror

// Open connects the configured mirrors; empty settings are skipped
func Open(ctx context.Context, postgresDSN, sqlitePath string) (Mirrors, error) {
	var ms Mirrors
	if postgresDSN != "" {
		db, err := NewDB(ctx, postgresDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Initialize(ctx); err != nil {
			db.Close()
			return nil, err
		}
		ms = append(ms, db)
	}
	if sqlitePath != "" {
		db, err := OpenSQLite(ctx, sqlitePath)
		if err != nil {
			ms.Close()
			return nil, err
		}
		ms = append(ms, db)
	}
	return ms, nil
}

// UpsertRecord writes rec to every mirror, collecting failures
func (ms Mirrors) UpsertRecord(ctx context.Context, rec models.DocumentRecord) error {
	var errs []error
	for _, m := range ms {
		if err := m.UpsertRecord(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpsertTags writes the registry to every mirror, collecting failures
func (ms Mirrors) UpsertTags(ctx context.Context, entries []models.TagEntry) error {
	var errs []error
	for _, m := range ms {
		if err := m.UpsertTags(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordsByTag queries the first mirror
func (ms Mirrors) RecordsByTag(ctx context.Context, tag string) ([]models.DocumentRecord, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("no database configured")
	}
	return ms[0].RecordsByTag(ctx, tag)
}

// Close closes every mirror
func (ms Mirrors) Close() error {
	var errs []error
	for _, m := range ms {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// yearValue maps an unknown year to NULL
func yearValue(y models.Year) *int {
	if !y.Known {
		return nil
	}
	v := y.Value
	return &v
}
