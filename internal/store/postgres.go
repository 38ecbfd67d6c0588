package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, username, email, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.Email, user.PasswordHash)
	return classifyError("insert user", err)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// ListFriends returns the users in userID's friend set in the order they were added.
func (s *PostgresStore) ListFriends(ctx context.Context, userID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.created_at
		FROM friendships f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY f.created_at, u.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends: %w", err)
	}
	return items, nil
}

// AddFriend set-adds friendID to userID's friends. Adding an existing friend is a no-op.
func (s *PostgresStore) AddFriend(ctx context.Context, userID, friendID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, friend_id) DO NOTHING
	`, userID, friendID)
	return classifyError("add friend", err)
}

func (s *PostgresStore) InsertThought(ctx context.Context, thought Thought) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thoughts (id, thought_text, username, created_at)
		VALUES ($1, $2, $3, $4)
	`, thought.ID, thought.Text, thought.Username, thought.CreatedAt)
	return classifyError("insert thought", err)
}

// AppendUserThought appends thoughtID to the user's thought list. It returns
// sql.ErrNoRows when the user does not exist.
func (s *PostgresStore) AppendUserThought(ctx context.Context, userID, thoughtID string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_thoughts (user_id, thought_id)
		SELECT $1, $2
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $1)
	`, userID, thoughtID)
	if err != nil {
		return classifyError("append user thought", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) DeleteThought(ctx context.Context, thoughtID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM thoughts WHERE id=$1`, thoughtID)
	if err != nil {
		return fmt.Errorf("delete thought: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThought(ctx context.Context, thoughtID string) (Thought, error) {
	var thought Thought
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thought_text, username, created_at
		FROM thoughts
		WHERE id=$1
	`, thoughtID).Scan(&thought.ID, &thought.Text, &thought.Username, &thought.CreatedAt)
	if err != nil {
		return Thought{}, err
	}
	items := []Thought{thought}
	if err := s.attachReactions(ctx, items); err != nil {
		return Thought{}, err
	}
	return items[0], nil
}

// ListThoughts returns thoughts newest first, filtered by author when username is set.
func (s *PostgresStore) ListThoughts(ctx context.Context, username string) ([]Thought, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thought_text, username, created_at
		FROM thoughts
		WHERE $1 = '' OR username = $1
		ORDER BY created_at DESC, id DESC
	`, username)
	if err != nil {
		return nil, fmt.Errorf("list thoughts: %w", err)
	}
	items, err := scanThoughts(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachReactions(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListUserThoughts returns the thoughts referenced by the user's list, in append order.
func (s *PostgresStore) ListUserThoughts(ctx context.Context, userID string) ([]Thought, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.thought_text, t.username, t.created_at
		FROM user_thoughts ut
		JOIN thoughts t ON t.id = ut.thought_id
		WHERE ut.user_id = $1
		ORDER BY ut.position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user thoughts: %w", err)
	}
	items, err := scanThoughts(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachReactions(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// InsertReaction appends a reaction to its thought. It returns sql.ErrNoRows
// when the thought does not exist, in which case nothing is written.
func (s *PostgresStore) InsertReaction(ctx context.Context, reaction Reaction) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (id, thought_id, reaction_body, username, created_at)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (SELECT 1 FROM thoughts WHERE id = $2)
	`, reaction.ID, reaction.ThoughtID, reaction.Body, reaction.Username, reaction.CreatedAt)
	if err != nil {
		return classifyError("insert reaction", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) attachReactions(ctx context.Context, thoughts []Thought) error {
	if len(thoughts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(thoughts))
	index := make(map[string]int, len(thoughts))
	for i := range thoughts {
		thoughts[i].Reactions = make([]Reaction, 0)
		ids = append(ids, thoughts[i].ID)
		index[thoughts[i].ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thought_id, reaction_body, username, created_at
		FROM reactions
		WHERE thought_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reaction Reaction
		if err := rows.Scan(&reaction.ID, &reaction.ThoughtID, &reaction.Body, &reaction.Username, &reaction.CreatedAt); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		i := index[reaction.ThoughtID]
		thoughts[i].Reactions = append(thoughts[i].Reactions, reaction)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reactions: %w", err)
	}
	return nil
}

func scanThoughts(rows *sql.Rows) ([]Thought, error) {
	defer rows.Close()
	items := make([]Thought, 0)
	for rows.Next() {
		var item Thought
		if err := rows.Scan(&item.ID, &item.Text, &item.Username, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thoughts: %w", err)
	}
	return items, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the addressed row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
