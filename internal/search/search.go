package search

import (
	"context"
	"time"
)

// Result is a single thought hit returned to the caller.
type Result struct {
	ThoughtID string    `json:"thoughtId"`
	Username  string    `json:"username"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query describes a search request. Username narrows hits to one author.
type Query struct {
	Text     string
	Username string
	Limit    int
	Offset   int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type Indexer interface {
	IndexThought(ctx context.Context, t ThoughtRecord) error
	IndexThoughts(ctx context.Context, records []ThoughtRecord) error
}

// ThoughtRecord is the data we index for a thought. CreatedAt is unix
// milliseconds so the engine can sort and filter on it.
type ThoughtRecord struct {
	ID          string `json:"id"`
	ThoughtText string `json:"thoughtText"`
	Username    string `json:"username"`
	CreatedAt   int64  `json:"createdAt"`
}

func NewThoughtRecord(id, text, username string, createdAt time.Time) ThoughtRecord {
	return ThoughtRecord{ID: id, ThoughtText: text, Username: username, CreatedAt: createdAt.UnixMilli()}
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
