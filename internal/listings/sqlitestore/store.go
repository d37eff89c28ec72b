// Package sqlitestore implements the job listing store on an embedded SQLite
// database with an FTS5 index over title and description.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/types"
	_ "modernc.org/sqlite"
)

// Store is a listings.Store and listings.Writer backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// sqlite wants a single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const listingColumns = `l.id, l.title, l.description, l.description_html, l.company, l.location,
	l.salary, l.currency, l.source_name, l.source_id, l.source_url, l.posted_at, l.created_at`

// UpsertListings inserts or replaces listings by ID in one transaction.
func (s *Store) UpsertListings(ctx context.Context, batch []types.JobListing) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO listings (id, title, description, description_html, company, location,
	salary, currency, source_name, source_id, source_url, posted_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	description_html = excluded.description_html,
	company = excluded.company,
	location = excluded.location,
	salary = excluded.salary,
	currency = excluded.currency,
	source_url = excluded.source_url,
	posted_at = excluded.posted_at;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, l := range batch {
		var posted any
		if l.PostedAt != nil {
			posted = l.PostedAt.UTC().Format(time.RFC3339)
		}
		created := l.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.Title, l.Description, l.DescriptionHTML, l.Company, l.Location,
			l.Salary, l.Currency, l.SourceName, l.SourceID, l.SourceURL, posted,
			created.UTC().Format(time.RFC3339),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert listing %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit listings: %w", err)
	}
	return len(batch), nil
}

// FullTextSearch matches every token of term within field using the FTS5 index.
func (s *Store) FullTextSearch(ctx context.Context, field listings.Field, term string, limit int) ([]types.JobListing, error) {
	column, ok := map[listings.Field]string{
		listings.FieldTitle:       "title",
		listings.FieldDescription: "description",
	}[field]
	if !ok {
		return nil, fmt.Errorf("unsupported search field %q", field)
	}

	tokens := types.Tokenize(term)
	if len(tokens) == 0 {
		return nil, nil
	}
	clauses := make([]string, len(tokens))
	for i, tok := range tokens {
		clauses[i] = fmt.Sprintf(`%s : "%s"`, column, strings.ReplaceAll(tok, `"`, `""`))
	}

	query := `
SELECT ` + listingColumns + `
FROM listings_fts f
JOIN listings l ON l.rowid = f.rowid
WHERE listings_fts MATCH ?
ORDER BY l.rowid
LIMIT ?;`
	return s.query(ctx, query, strings.Join(clauses, " AND "), limitOrAll(limit))
}

// SubstringFilter matches any term against title, description, source and location.
func (s *Store) SubstringFilter(ctx context.Context, terms []string, limit int) ([]types.JobListing, error) {
	var (
		conds []string
		args  []any
	)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		pattern := "%" + escapeLike(t) + "%"
		conds = append(conds, `(lower(l.title) LIKE ? ESCAPE '\' OR lower(l.description) LIKE ? ESCAPE '\'
	OR lower(l.source_name) LIKE ? ESCAPE '\' OR lower(l.location) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	args = append(args, limitOrAll(limit))

	query := `
SELECT ` + listingColumns + `
FROM listings l
WHERE ` + strings.Join(conds, " OR ") + `
ORDER BY l.rowid
LIMIT ?;`
	return s.query(ctx, query, args...)
}

// GetByID returns the listing with id.
func (s *Store) GetByID(ctx context.Context, id string) (*types.JobListing, error) {
	out, err := s.query(ctx, `SELECT `+listingColumns+` FROM listings l WHERE l.id = ?;`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("listing %s: %w", id, types.ErrNotFound)
	}
	return &out[0], nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]types.JobListing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []types.JobListing
	for rows.Next() {
		var (
			l         types.JobListing
			salary    sql.NullFloat64
			postedAt  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.Description, &l.DescriptionHTML, &l.Company, &l.Location,
			&salary, &l.Currency, &l.SourceName, &l.SourceID, &l.SourceURL, &postedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		if salary.Valid {
			v := salary.Float64
			l.Salary = &v
		}
		if postedAt.Valid {
			if t, err := time.Parse(time.RFC3339, postedAt.String); err == nil {
				l.PostedAt = &t
			}
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
