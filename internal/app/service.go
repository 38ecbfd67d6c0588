package app

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"deepthoughts/api/internal/access"
	"deepthoughts/api/internal/auth"
	"deepthoughts/api/internal/authpw"
	"deepthoughts/api/internal/search"
	"deepthoughts/api/internal/store"
	"deepthoughts/api/internal/util"
)

const maxTextLength = 280

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	ListFriends(context.Context, string) ([]store.User, error)
	ListUserThoughts(context.Context, string) ([]store.Thought, error)
	AddFriend(context.Context, string, string) error
	InsertThought(context.Context, store.Thought) error
	AppendUserThought(context.Context, string, string) error
	DeleteThought(context.Context, string) error
	GetThought(context.Context, string) (store.Thought, error)
	ListThoughts(context.Context, string) ([]store.Thought, error)
	InsertReaction(context.Context, store.Reaction) error
	Ping(context.Context) error
}

// LoginThrottle limits failed logins per email.
type LoginThrottle interface {
	Allow(ctx context.Context, email string) (bool, time.Duration, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type ThoughtIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexThought(t search.ThoughtRecord)
	ReindexAllFromPG(ctx context.Context)
}

type Options struct {
	Search   ThoughtIndex
	Throttle LoginThrottle
	Logger   *slog.Logger
}

type Service struct {
	store     dataStore
	codec     *auth.Codec
	passwords *authpw.Service
	throttle  LoginThrottle
	search    ThoughtIndex
	logger    *slog.Logger
	now       func() time.Time
}

func New(st dataStore, codec *auth.Codec, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		codec:     codec,
		passwords: authpw.NewService(st),
		throttle:  opts.Throttle,
		search:    opts.Search,
		logger:    logger,
		now:       time.Now,
	}
}

type FriendResult struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type ReactionResult struct {
	ID           string    `json:"_id"`
	ReactionBody string    `json:"reactionBody"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ThoughtResult struct {
	ID            string           `json:"_id"`
	ThoughtText   string           `json:"thoughtText"`
	Username      string           `json:"username"`
	CreatedAt     time.Time        `json:"createdAt"`
	ReactionCount int              `json:"reactionCount"`
	Reactions     []ReactionResult `json:"reactions"`
}

// UserResult is the one shape every user-returning operation uses. The
// password hash never leaves the store layer.
type UserResult struct {
	ID          string          `json:"_id"`
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	FriendCount int             `json:"friendCount"`
	Thoughts    []ThoughtResult `json:"thoughts"`
	Friends     []FriendResult  `json:"friends"`
}

type AuthPayload struct {
	Token string     `json:"token"`
	User  UserResult `json:"user"`
}

type SignUpInput struct {
	Username string
	Email    string
	Password string
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap rebuilds the search index from Postgres when a search engine is wired.
func (s *Service) Bootstrap(ctx context.Context) {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
}

func (s *Service) Me(ctx context.Context, viewer auth.Identity) (*UserResult, error) {
	claim, err := requireIdentity(viewer, access.ActionReadOwn, "Not logged in")
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, claim.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, s.storeFailure("me", err)
	}
	result, err := s.populateUser(ctx, user)
	if err != nil {
		return nil, s.storeFailure("me", err)
	}
	return &result, nil
}

func (s *Service) Users(ctx context.Context) ([]UserResult, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, s.storeFailure("users", err)
	}
	items := make([]UserResult, 0, len(users))
	for _, user := range users {
		result, err := s.populateUser(ctx, user)
		if err != nil {
			return nil, s.storeFailure("users", err)
		}
		items = append(items, result)
	}
	return items, nil
}

// User returns nil when no user has the given username.
func (s *Service) User(ctx context.Context, username string) (*UserResult, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, s.storeFailure("user", err)
	}
	result, err := s.populateUser(ctx, user)
	if err != nil {
		return nil, s.storeFailure("user", err)
	}
	return &result, nil
}

func (s *Service) Thoughts(ctx context.Context, username string) ([]ThoughtResult, error) {
	thoughts, err := s.store.ListThoughts(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, s.storeFailure("thoughts", err)
	}
	return toThoughtResults(thoughts), nil
}

func (s *Service) Thought(ctx context.Context, thoughtID string) (*ThoughtResult, error) {
	thought, err := s.store.GetThought(ctx, thoughtID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, s.storeFailure("thought", err)
	}
	result := toThoughtResult(thought)
	return &result, nil
}

func (s *Service) AddUser(ctx context.Context, input SignUpInput) (AuthPayload, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		return AuthPayload{}, s.classify("addUser", err)
	}
	return s.authPayload(ctx, "addUser", user)
}

func (s *Service) Login(ctx context.Context, email, password string) (AuthPayload, error) {
	email = authpw.NormalizeEmail(email)

	if s.throttle != nil {
		allowed, retryAfter, err := s.throttle.Allow(ctx, email)
		if err != nil {
			s.logger.Warn("login throttle unavailable", "error", err)
		} else if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			return AuthPayload{}, domainError(http.StatusTooManyRequests, CodeTooManyAttempts,
				"Too many failed login attempts", map[string]any{"retryAfterSeconds": seconds})
		}
	}

	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		if s.throttle != nil {
			if err := s.throttle.RecordFailure(ctx, email); err != nil {
				s.logger.Warn("record login failure", "error", err)
			}
		}
		return AuthPayload{}, errInvalidCredentials()
	}
	if err != nil {
		return AuthPayload{}, s.storeFailure("login", err)
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.logger.Warn("reset login failures", "error", err)
		}
	}
	return s.authPayload(ctx, "login", user)
}

// AddThought creates the thought and then appends it to the author's list.
// When the append fails the thought is deleted again.
func (s *Service) AddThought(ctx context.Context, viewer auth.Identity, thoughtText string) (ThoughtResult, error) {
	claim, err := requireIdentity(viewer, access.ActionWrite, "You need to be logged in!")
	if err != nil {
		return ThoughtResult{}, err
	}
	text := strings.TrimSpace(thoughtText)
	if msg := validateText(text, "thought"); msg != "" {
		return ThoughtResult{}, errValidation(map[string]string{"thoughtText": msg})
	}

	thought := store.Thought{
		ID:        util.NewID("th"),
		Text:      text,
		Username:  claim.Username,
		CreatedAt: s.timestamp(),
		Reactions: []store.Reaction{},
	}
	if err := s.store.InsertThought(ctx, thought); err != nil {
		return ThoughtResult{}, s.classify("addThought", err)
	}

	if err := s.store.AppendUserThought(ctx, claim.ID, thought.ID); err != nil {
		if delErr := s.store.DeleteThought(ctx, thought.ID); delErr != nil {
			s.logger.Error("orphaned thought after failed append", "thought_id", thought.ID, "error", delErr)
		}
		if store.IsNotFound(err) {
			return ThoughtResult{}, errNotFound("user not found")
		}
		return ThoughtResult{}, s.classify("addThought", err)
	}

	if s.search != nil {
		s.search.IndexThought(search.NewThoughtRecord(thought.ID, thought.Text, thought.Username, thought.CreatedAt))
	}
	return toThoughtResult(thought), nil
}

func (s *Service) AddReaction(ctx context.Context, viewer auth.Identity, thoughtID, reactionBody string) (ThoughtResult, error) {
	claim, err := requireIdentity(viewer, access.ActionWrite, "You need to be logged in!")
	if err != nil {
		return ThoughtResult{}, err
	}
	body := strings.TrimSpace(reactionBody)
	if msg := validateText(body, "reaction"); msg != "" {
		return ThoughtResult{}, errValidation(map[string]string{"reactionBody": msg})
	}

	reaction := store.Reaction{
		ID:        util.NewID("rx"),
		ThoughtID: strings.TrimSpace(thoughtID),
		Body:      body,
		Username:  claim.Username,
		CreatedAt: s.timestamp(),
	}
	if err := s.store.InsertReaction(ctx, reaction); err != nil {
		if store.IsNotFound(err) {
			return ThoughtResult{}, errNotFound("thought not found")
		}
		return ThoughtResult{}, s.classify("addReaction", err)
	}

	thought, err := s.store.GetThought(ctx, reaction.ThoughtID)
	if err != nil {
		return ThoughtResult{}, s.storeFailure("addReaction", err)
	}
	return toThoughtResult(thought), nil
}

func (s *Service) AddFriend(ctx context.Context, viewer auth.Identity, friendID string) (UserResult, error) {
	claim, err := requireIdentity(viewer, access.ActionWrite, "You need to be logged in!")
	if err != nil {
		return UserResult{}, err
	}
	friendID = strings.TrimSpace(friendID)
	if friendID == "" {
		return UserResult{}, errValidation(map[string]string{"friendId": "friendId is required"})
	}

	user, err := s.store.GetUserByID(ctx, claim.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return UserResult{}, errNotFound("user not found")
		}
		return UserResult{}, s.storeFailure("addFriend", err)
	}
	if _, err := s.store.GetUserByID(ctx, friendID); err != nil {
		if store.IsNotFound(err) {
			return UserResult{}, errNotFound("friend not found")
		}
		return UserResult{}, s.storeFailure("addFriend", err)
	}

	if err := s.store.AddFriend(ctx, user.ID, friendID); err != nil {
		return UserResult{}, s.classify("addFriend", err)
	}
	result, err := s.populateUser(ctx, user)
	if err != nil {
		return UserResult{}, s.storeFailure("addFriend", err)
	}
	return result, nil
}

func (s *Service) SearchThoughts(ctx context.Context, query, username string, limit int) (search.Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Response{}, errValidation(map[string]string{"query": "query is required"})
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	return s.search.Search(ctx, search.Query{Text: query, Username: strings.TrimSpace(username), Limit: limit}), nil
}

func requireIdentity(viewer auth.Identity, action access.Action, message string) (auth.Claim, error) {
	if !access.Can(access.RoleOf(viewer), action) {
		return auth.Claim{}, errUnauthenticated(message)
	}
	claim, ok := viewer.Claim()
	if !ok {
		return auth.Claim{}, errUnauthenticated(message)
	}
	return claim, nil
}

func (s *Service) authPayload(ctx context.Context, op string, user store.User) (AuthPayload, error) {
	token, err := s.codec.Issue(auth.Claim{ID: user.ID, Username: user.Username, Email: user.Email})
	if err != nil {
		s.logger.Error("issue token", "operation", op, "error", err)
		return AuthPayload{}, errServer()
	}
	result, err := s.populateUser(ctx, user)
	if err != nil {
		return AuthPayload{}, s.storeFailure(op, err)
	}
	return AuthPayload{Token: token, User: result}, nil
}

func (s *Service) populateUser(ctx context.Context, user store.User) (UserResult, error) {
	thoughts, err := s.store.ListUserThoughts(ctx, user.ID)
	if err != nil {
		return UserResult{}, err
	}
	friends, err := s.store.ListFriends(ctx, user.ID)
	if err != nil {
		return UserResult{}, err
	}

	result := UserResult{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FriendCount: len(friends),
		Thoughts:    toThoughtResults(thoughts),
		Friends:     make([]FriendResult, 0, len(friends)),
	}
	for _, friend := range friends {
		result.Friends = append(result.Friends, FriendResult{ID: friend.ID, Username: friend.Username, Email: friend.Email})
	}
	return result, nil
}

// classify maps validation and constraint errors to VALIDATION_ERROR and
// masks everything else.
func (s *Service) classify(op string, err error) error {
	var validationErr *authpw.ValidationError
	if errors.As(err, &validationErr) {
		return errValidation(validationErr.Fields)
	}
	var constraintErr *store.ConstraintError
	if errors.As(err, &constraintErr) {
		field := constraintErr.Field
		if field == "" {
			field = "input"
		}
		return errValidation(map[string]string{field: constraintErr.Message})
	}
	return s.storeFailure(op, err)
}

func (s *Service) storeFailure(op string, err error) error {
	s.logger.Error("store operation failed", "operation", op, "error", err)
	return errServer()
}

// timestamp is truncated to what Postgres stores.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func validateText(text, noun string) string {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return noun + " must not be empty"
	}
	if n > maxTextLength {
		return noun + " must be at most 280 characters"
	}
	return ""
}

func toThoughtResults(thoughts []store.Thought) []ThoughtResult {
	items := make([]ThoughtResult, 0, len(thoughts))
	for _, thought := range thoughts {
		items = append(items, toThoughtResult(thought))
	}
	return items
}

func toThoughtResult(thought store.Thought) ThoughtResult {
	reactions := make([]ReactionResult, 0, len(thought.Reactions))
	for _, reaction := range thought.Reactions {
		reactions = append(reactions, ReactionResult{
			ID:           reaction.ID,
			ReactionBody: reaction.Body,
			Username:     reaction.Username,
			CreatedAt:    reaction.CreatedAt,
		})
	}
	return ThoughtResult{
		ID:            thought.ID,
		ThoughtText:   thought.Text,
		Username:      thought.Username,
		CreatedAt:     thought.CreatedAt,
		ReactionCount: len(reactions),
		Reactions:     reactions,
	}
}
