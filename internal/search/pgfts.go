package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS searches the generated tsvector column on thoughts. It is the
// fallback whenever Meilisearch is absent or unhealthy.
type PgFTS struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db, timeout: 5 * time.Second}
}

// Healthy always returns true. Without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.username, t.created_at,
			ts_headline('english', t.thought_text, query, 'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS snippet,
			COUNT(*) OVER () AS total
		FROM thoughts t, plainto_tsquery('english', $1) query
		WHERE t.fts @@ query
			AND ($2 = '' OR t.username = $2)
		ORDER BY ts_rank(t.fts, query) DESC, t.created_at DESC
		LIMIT $3 OFFSET $4
	`, q.Text, q.Username, normalizeLimit(q.Limit), max(q.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ThoughtID, &r.Username, &r.CreatedAt, &r.Snippet, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every thought for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ThoughtRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, thought_text, username, created_at FROM thoughts`)
	if err != nil {
		return nil, fmt.Errorf("load thoughts: %w", err)
	}
	defer rows.Close()

	records := make([]ThoughtRecord, 0)
	for rows.Next() {
		var (
			id, text, username string
			createdAt          time.Time
		)
		if err := rows.Scan(&id, &text, &username, &createdAt); err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		records = append(records, NewThoughtRecord(id, text, username, createdAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thoughts: %w", err)
	}
	return records, nil
}
