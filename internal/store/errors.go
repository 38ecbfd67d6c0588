package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ConstraintError reports a write rejected by a schema constraint. Field is
// the client-facing field name when the constraint maps to one.
type ConstraintError struct {
	Constraint string
	Field      string
	Message    string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

var constraintFields = map[string]struct {
	field   string
	message string
}{
	"users_username_key":            {"username", "username is already taken"},
	"users_email_key":               {"email", "email is already registered"},
	"users_username_check":          {"username", "username must be between 1 and 64 characters"},
	"users_email_check":             {"email", "must match an email address"},
	"thoughts_thought_text_check":   {"thoughtText", "thought must be between 1 and 280 characters"},
	"reactions_reaction_body_check": {"reactionBody", "reaction must be between 1 and 280 characters"},
	"friendships_friend_id_fkey":    {"friendId", "friend does not exist"},
}

// classifyError converts constraint violations into *ConstraintError and
// wraps everything else with op.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.CheckViolation, pgerrcode.ForeignKeyViolation,
		pgerrcode.NotNullViolation, pgerrcode.StringDataRightTruncationDataException:
		known, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			return &ConstraintError{Constraint: pgErr.ConstraintName, Field: pgErr.ColumnName, Message: pgErr.Message, Err: err}
		}
		return &ConstraintError{Constraint: pgErr.ConstraintName, Field: known.field, Message: known.message, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
