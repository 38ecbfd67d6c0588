package store

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Thought struct {
	ID        string
	Text      string
	Username  string
	CreatedAt time.Time
	Reactions []Reaction
}

// Reaction belongs to exactly one Thought; its ID is only meaningful there.
type Reaction struct {
	ID        string
	ThoughtID string
	Body      string
	Username  string
	CreatedAt time.Time
}
