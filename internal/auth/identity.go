package auth

import "context"

// Identity is the per-request authentication result: anonymous or
// authenticated as a Claim. The zero value is anonymous.
type Identity struct {
	claim *Claim
}

func Anonymous() Identity {
	return Identity{}
}

func Authenticated(claim Claim) Identity {
	return Identity{claim: &claim}
}

func (i Identity) IsAuthenticated() bool {
	return i.claim != nil
}

// Claim returns the authenticated claim and true, or false for anonymous.
func (i Identity) Claim() (Claim, bool) {
	if i.claim == nil {
		return Claim{}, false
	}
	return *i.claim, true
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the attached identity, anonymous when absent.
func IdentityFromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(identityKey{}).(Identity)
	return identity
}
