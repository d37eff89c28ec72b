package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/types"
)

const listingColumns = `id, title, description, description_html, company, location, salary,
	currency, source_name, source_id, source_url, posted_at, created_at`

// tsvColumn maps a searchable field to its generated tsvector column.
func tsvColumn(field listings.Field) (string, error) {
	switch field {
	case listings.FieldTitle:
		return "title_tsv", nil
	case listings.FieldDescription:
		return "description_tsv", nil
	default:
		return "", fmt.Errorf("unsupported search field %q", field)
	}
}

// UpsertListings inserts or replaces listings by ID in one batched transaction.
// Replacing a listing keeps its original position in discovery order.
func (db *DB) UpsertListings(ctx context.Context, batch []types.JobListing) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, l := range batch {
		b.Queue(
			`INSERT INTO job_listings (`+listingColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()))
			 ON CONFLICT (id) DO UPDATE
			 SET title = EXCLUDED.title, description = EXCLUDED.description,
			     description_html = EXCLUDED.description_html, company = EXCLUDED.company,
			     location = EXCLUDED.location, salary = EXCLUDED.salary,
			     currency = EXCLUDED.currency, source_name = EXCLUDED.source_name,
			     source_id = EXCLUDED.source_id, source_url = EXCLUDED.source_url,
			     posted_at = EXCLUDED.posted_at`,
			l.ID, l.Title, l.Description, l.DescriptionHTML, l.Company, l.Location, l.Salary,
			l.Currency, l.SourceName, l.SourceID, l.SourceURL, l.PostedAt, nullTime(l.CreatedAt),
		)
	}

	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, b)
		for i := range batch {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to upsert listing %s: %w", batch[i].ID, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return len(batch), nil
}

// FullTextSearch returns listings whose field matches every word of term under English
// stemming, in discovery order.
func (db *DB) FullTextSearch(ctx context.Context, field listings.Field, term string, limit int) ([]types.JobListing, error) {
	col, err := tsvColumn(field)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM job_listings
		 WHERE `+col+` @@ plainto_tsquery('english', $1)
		 ORDER BY seq
		 LIMIT $2`,
		term, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return collectListings(rows)
}

// SubstringFilter returns listings whose title, description, source or location
// contains any of terms, case-insensitively, in discovery order.
func (db *DB) SubstringFilter(ctx context.Context, terms []string, limit int) ([]types.JobListing, error) {
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			patterns = append(patterns, "%"+escapeLike(t)+"%")
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM job_listings
		 WHERE title ILIKE ANY($1) OR description ILIKE ANY($1)
		    OR source_name ILIKE ANY($1) OR location ILIKE ANY($1)
		 ORDER BY seq
		 LIMIT $2`,
		patterns, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to filter listings: %w", err)
	}
	return collectListings(rows)
}

// GetByID returns the listing or an error wrapping types.ErrNotFound.
func (db *DB) GetByID(ctx context.Context, id string) (*types.JobListing, error) {
	l, err := scanListing(db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM job_listings WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("listing %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

func collectListings(rows pgx.Rows) ([]types.JobListing, error) {
	defer rows.Close()
	var out []types.JobListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (*types.JobListing, error) {
	var l types.JobListing
	if err := row.Scan(&l.ID, &l.Title, &l.Description, &l.DescriptionHTML, &l.Company, &l.Location,
		&l.Salary, &l.Currency, &l.SourceName, &l.SourceID, &l.SourceURL, &l.PostedAt, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// escapeLike escapes the ILIKE wildcards and the default escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// nullTime maps the zero time to NULL so the column default applies.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var (
	_ listings.Store  = (*DB)(nil)
	_ listings.Writer = (*DB)(nil)
)
