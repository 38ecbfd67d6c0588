package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"deepthoughts/api/internal/auth"
	"deepthoughts/api/internal/metrics"
)

// Variables is the union of every operation's arguments.
type Variables struct {
	ID           string `json:"_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ThoughtText  string `json:"thoughtText"`
	ThoughtID    string `json:"thoughtId"`
	ReactionBody string `json:"reactionBody"`
	FriendID     string `json:"friendId"`
	Query        string `json:"query"`
	Limit        int    `json:"limit"`
}

type operation struct {
	mutation bool
	run      func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error)
}

var operations = map[string]operation{
	"me": {run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.Me(ctx, viewer)
	}},
	"users": {run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.Users(ctx)
	}},
	"user": {run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.User(ctx, v.Username)
	}},
	"thoughts": {run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.Thoughts(ctx, v.Username)
	}},
	"thought": {run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.Thought(ctx, v.ID)
	}},
	"searchThoughts": {run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.SearchThoughts(ctx, v.Query, v.Username, v.Limit)
	}},
	"addUser": {mutation: true, run: addUser},
	"signup":  {mutation: true, run: addUser},
	"login": {mutation: true, run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.Login(ctx, v.Email, v.Password)
	}},
	"addThought": {mutation: true, run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.AddThought(ctx, viewer, v.ThoughtText)
	}},
	"addReaction": {mutation: true, run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.AddReaction(ctx, viewer, v.ThoughtID, v.ReactionBody)
	}},
	"addFriend": {mutation: true, run: func(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
		return s.AddFriend(ctx, viewer, v.FriendID)
	}},
}

func addUser(ctx context.Context, s *Service, viewer auth.Identity, v Variables) (any, error) {
	return s.AddUser(ctx, SignUpInput{Username: v.Username, Email: v.Email, Password: v.Password})
}

// Execute runs the named operation as viewer. Mutations are refused unless
// allowMutation is set, which the transport clears for GET requests.
func (s *Service) Execute(ctx context.Context, name string, viewer auth.Identity, v Variables, allowMutation bool) (any, error) {
	op, ok := operations[name]
	if !ok {
		return nil, domainError(http.StatusBadRequest, CodeUnknownOperation, "Unknown operation", map[string]string{"operation": name})
	}
	if op.mutation && !allowMutation {
		return nil, domainError(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Mutations require POST", nil)
	}

	started := time.Now()
	result, err := op.run(ctx, s, viewer, v)
	status := "ok"
	if err != nil {
		status = CodeServerError
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			status = domainErr.Code
		}
	}
	metrics.RecordOperation(name, status, time.Since(started))
	return result, err
}

// variablesFromQuery reads read-operation arguments from a GET query string.
func variablesFromQuery(values url.Values) (Variables, error) {
	v := Variables{
		ID:       values.Get("_id"),
		Username: values.Get("username"),
		Query:    values.Get("query"),
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Variables{}, domainError(http.StatusBadRequest, CodeInvalidBody, "limit must be an integer", nil)
		}
		v.Limit = limit
	}
	return v, nil
}
