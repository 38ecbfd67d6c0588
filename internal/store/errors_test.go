package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyErrorMapsKnownConstraints(t *testing.T) {
	cases := []struct {
		name       string
		code       string
		constraint string
		field      string
	}{
		{name: "duplicate username", code: pgerrcode.UniqueViolation, constraint: "users_username_key", field: "username"},
		{name: "duplicate email", code: pgerrcode.UniqueViolation, constraint: "users_email_key", field: "email"},
		{name: "bad email", code: pgerrcode.CheckViolation, constraint: "users_email_check", field: "email"},
		{name: "long thought", code: pgerrcode.CheckViolation, constraint: "thoughts_thought_text_check", field: "thoughtText"},
		{name: "empty reaction", code: pgerrcode.CheckViolation, constraint: "reactions_reaction_body_check", field: "reactionBody"},
		{name: "missing friend", code: pgerrcode.ForeignKeyViolation, constraint: "friendships_friend_id_fkey", field: "friendId"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tc.code, ConstraintName: tc.constraint, Message: "raw"}
			err := classifyError("write", pgErr)

			var constraintErr *ConstraintError
			if !errors.As(err, &constraintErr) {
				t.Fatalf("expected *ConstraintError, got %T (%v)", err, err)
			}
			if constraintErr.Field != tc.field {
				t.Fatalf("field = %q, want %q", constraintErr.Field, tc.field)
			}
			if constraintErr.Message == "raw" {
				t.Fatal("expected mapped message, got driver message")
			}
			if !errors.Is(err, pgErr) {
				t.Fatal("expected original driver error to stay in the chain")
			}
		})
	}
}

func TestClassifyErrorUnknownConstraintKeepsDriverDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "username", Message: "null value"}
	err := classifyError("insert thought", pgErr)

	var constraintErr *ConstraintError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("expected *ConstraintError, got %T", err)
	}
	if constraintErr.Field != "username" || constraintErr.Message != "null value" {
		t.Fatalf("unexpected constraint error: %+v", constraintErr)
	}
}

func TestClassifyErrorWrapsOtherFailures(t *testing.T) {
	if classifyError("noop", nil) != nil {
		t.Fatal("nil error must stay nil")
	}

	base := errors.New("connection reset")
	err := classifyError("insert user", base)
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error")
	}
	if err.Error() != "insert user: connection reset" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	var constraintErr *ConstraintError
	if errors.As(classifyError("x", &pgconn.PgError{Code: pgerrcode.SerializationFailure}), &constraintErr) {
		t.Fatal("serialization failure must not be reported as a constraint error")
	}
}
