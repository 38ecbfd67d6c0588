package auth

import (
	"errors"
	"log/slog"
	"strings"

	"deepthoughts/api/internal/metrics"
)

// Carriers holds the three places a credential may arrive in.
type Carriers struct {
	Body   string
	Query  string
	Header string // raw Authorization value, e.g. "Bearer <token>"
}

// Resolver turns request carriers into an Identity. It fails open: a missing
// or unverifiable credential yields Anonymous, never an error.
type Resolver struct {
	codec  *Codec
	logger *slog.Logger
}

func NewResolver(codec *Codec, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{codec: codec, logger: logger}
}

func (r *Resolver) Resolve(carriers Carriers) Identity {
	token := extractToken(carriers)
	if token == "" {
		metrics.RecordResolution(metrics.ResolutionAnonymous)
		return Anonymous()
	}

	claim, err := r.codec.Verify(token)
	if err != nil {
		result := metrics.ResolutionInvalid
		if errors.Is(err, ErrExpiredCredential) {
			result = metrics.ResolutionExpired
		}
		metrics.RecordResolution(result)
		r.logger.Info("credential rejected, continuing anonymously", "reason", err.Error())
		return Anonymous()
	}

	metrics.RecordResolution(metrics.ResolutionAuthenticated)
	return Authenticated(claim)
}

// extractToken applies body, query, header precedence. Header values lose
// their scheme prefix ("Bearer") and surrounding whitespace.
func extractToken(c Carriers) string {
	if body := strings.TrimSpace(c.Body); body != "" {
		return body
	}
	if query := strings.TrimSpace(c.Query); query != "" {
		return query
	}
	fields := strings.Fields(c.Header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
