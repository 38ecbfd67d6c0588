package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"deepthoughts/api/internal/util"
)

// openTestStore needs TEST_DATABASE_URL pointing at a disposable database.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn, DefaultPoolOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := ApplyMigrations(ctx, db, migrationsDir, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE friendships, reactions, user_thoughts, thoughts, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(db)
}

func createTestUser(t *testing.T, s *PostgresStore, username string) User {
	t.Helper()
	user := User{
		ID:           util.NewID("usr"),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func TestPostgresStoreUserUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	createTestUser(t, s, "ada")

	err := s.CreateUser(ctx, User{ID: util.NewID("usr"), Username: "ada", Email: "other@example.com", PasswordHash: "x"})
	var constraintErr *ConstraintError
	if !errors.As(err, &constraintErr) || constraintErr.Field != "username" {
		t.Fatalf("expected username constraint error, got %v", err)
	}

	err = s.CreateUser(ctx, User{ID: util.NewID("usr"), Username: "grace", Email: "ada@example.com", PasswordHash: "x"})
	if !errors.As(err, &constraintErr) || constraintErr.Field != "email" {
		t.Fatalf("expected email constraint error, got %v", err)
	}
}

func TestPostgresStoreThoughtLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ada := createTestUser(t, s, "ada")

	first := Thought{ID: util.NewID("th"), Text: "first", Username: "ada", CreatedAt: time.Now().UTC().Add(-time.Minute)}
	second := Thought{ID: util.NewID("th"), Text: "second", Username: "ada", CreatedAt: time.Now().UTC()}
	for _, th := range []Thought{first, second} {
		if err := s.InsertThought(ctx, th); err != nil {
			t.Fatalf("insert thought: %v", err)
		}
		if err := s.AppendUserThought(ctx, ada.ID, th.ID); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	listed, err := s.ListThoughts(ctx, "")
	if err != nil {
		t.Fatalf("list thoughts: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", listed)
	}

	own, err := s.ListUserThoughts(ctx, ada.ID)
	if err != nil {
		t.Fatalf("list user thoughts: %v", err)
	}
	if len(own) != 2 || own[0].ID != first.ID {
		t.Fatalf("expected append order, got %+v", own)
	}

	if err := s.AppendUserThought(ctx, "usr_missing", first.ID); !IsNotFound(err) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}

	if err := s.DeleteThought(ctx, second.ID); err != nil {
		t.Fatalf("delete thought: %v", err)
	}
	if _, err := s.GetThought(ctx, second.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected deleted thought to be gone, got %v", err)
	}
	own, _ = s.ListUserThoughts(ctx, ada.ID)
	if len(own) != 1 {
		t.Fatalf("expected cascade to drop list entry, got %d", len(own))
	}
}

func TestPostgresStoreReactions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	createTestUser(t, s, "ada")

	th := Thought{ID: util.NewID("th"), Text: "hello", Username: "ada", CreatedAt: time.Now().UTC()}
	if err := s.InsertThought(ctx, th); err != nil {
		t.Fatalf("insert thought: %v", err)
	}
	reaction := Reaction{ID: util.NewID("rx"), ThoughtID: th.ID, Body: "nice", Username: "grace", CreatedAt: time.Now().UTC()}
	if err := s.InsertReaction(ctx, reaction); err != nil {
		t.Fatalf("insert reaction: %v", err)
	}

	missing := Reaction{ID: util.NewID("rx"), ThoughtID: "th_missing", Body: "nice", Username: "grace", CreatedAt: time.Now().UTC()}
	if err := s.InsertReaction(ctx, missing); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, err := s.GetThought(ctx, th.ID)
	if err != nil {
		t.Fatalf("get thought: %v", err)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Body != "nice" {
		t.Fatalf("unexpected reactions: %+v", got.Reactions)
	}
}

func TestPostgresStoreFriendsAreASet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ada := createTestUser(t, s, "ada")
	grace := createTestUser(t, s, "grace")

	for i := 0; i < 2; i++ {
		if err := s.AddFriend(ctx, ada.ID, grace.ID); err != nil {
			t.Fatalf("add friend: %v", err)
		}
	}
	friends, err := s.ListFriends(ctx, ada.ID)
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(friends) != 1 || friends[0].ID != grace.ID {
		t.Fatalf("expected single friend, got %+v", friends)
	}

	reverse, _ := s.ListFriends(ctx, grace.ID)
	if len(reverse) != 0 {
		t.Fatal("friendship must be one-directional")
	}

	err = s.AddFriend(ctx, ada.ID, "usr_missing")
	var constraintErr *ConstraintError
	if !errors.As(err, &constraintErr) || constraintErr.Field != "friendId" {
		t.Fatalf("expected friendId constraint error, got %v", err)
	}
}
