package auth

import (
	"context"
	"testing"
	"time"

	"deepthoughts/api/internal/logging"
)

func issueFor(t *testing.T, codec *Codec, username string) string {
	t.Helper()
	token, err := codec.Issue(Claim{ID: "usr_" + username, Username: username, Email: username + "@x.com"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestResolvePrecedence(t *testing.T) {
	codec := NewCodec([]byte("secret"), time.Hour)
	resolver := NewResolver(codec, logging.Discard())
	body := issueFor(t, codec, "body")
	query := issueFor(t, codec, "query")
	header := issueFor(t, codec, "header")

	tests := []struct {
		name     string
		carriers Carriers
		want     string
	}{
		{"body wins", Carriers{Body: body, Query: query, Header: "Bearer " + header}, "body"},
		{"query before header", Carriers{Query: query, Header: "Bearer " + header}, "query"},
		{"header with scheme", Carriers{Header: "Bearer " + header}, "header"},
		{"header with padding", Carriers{Header: "  Bearer   " + header + "  "}, "header"},
		{"bare header token", Carriers{Header: header}, "header"},
		{"blank body falls through", Carriers{Body: "   ", Header: "Bearer " + header}, "header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := resolver.Resolve(tt.carriers)
			claim, ok := identity.Claim()
			if !ok {
				t.Fatal("expected authenticated identity")
			}
			if claim.Username != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, claim.Username)
			}
		})
	}
}

func TestResolveFailsOpenToAnonymous(t *testing.T) {
	codec := NewCodec([]byte("secret"), time.Hour)
	resolver := NewResolver(codec, logging.Discard())

	expiredCodec := NewCodec([]byte("secret"), time.Hour)
	expiredCodec.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired := issueFor(t, expiredCodec, "old")
	foreign := issueFor(t, NewCodec([]byte("other"), time.Hour), "mallory")

	inputs := []Carriers{
		{},
		{Header: "Bearer"},
		{Header: "Bearer    "},
		{Body: "garbage"},
		{Query: "a.b.c"},
		{Header: "Bearer " + expired},
		{Body: foreign},
		// An invalid body token is not rescued by a valid header.
		{Body: "garbage", Header: "Bearer " + issueFor(t, codec, "ada")},
	}
	for _, carriers := range inputs {
		if identity := resolver.Resolve(carriers); identity.IsAuthenticated() {
			t.Errorf("expected anonymous for %+v", carriers)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	if IdentityFromContext(context.Background()).IsAuthenticated() {
		t.Fatal("empty context must be anonymous")
	}
	ctx := WithIdentity(context.Background(), Authenticated(Claim{ID: "usr_1", Username: "ada"}))
	claim, ok := IdentityFromContext(ctx).Claim()
	if !ok || claim.Username != "ada" {
		t.Fatalf("expected ada, got %+v ok=%v", claim, ok)
	}
	if _, ok := Anonymous().Claim(); ok {
		t.Fatal("anonymous must not carry a claim")
	}
}
