package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"deepthoughts/api/internal/auth"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	resolver   *auth.Resolver
	corsOrigin string
	logger     *slog.Logger
	metrics    http.Handler
}

// NewHTTPServer wires the operation endpoint. metricsHandler may be nil.
func NewHTTPServer(service *Service, resolver *auth.Resolver, corsOrigin string, logger *slog.Logger, metricsHandler http.Handler) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		service:    service,
		resolver:   resolver,
		corsOrigin: corsOrigin,
		logger:     logger,
		metrics:    metricsHandler,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead

	switch r.URL.Path {
	case "/api/health":
		if !isRead {
			writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "/api/ready":
		if !isRead {
			writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
			return
		}
		s.handleReady(w, r)
	case "/metrics":
		if s.metrics == nil || !isRead {
			writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
			return
		}
		s.metrics.ServeHTTP(w, r)
	case "/api/operations":
		switch r.Method {
		case http.MethodPost:
			s.handleOperationPost(w, r)
		case http.MethodGet:
			s.handleOperationGet(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", nil)
		}
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error"}
		s.logger.Warn("readiness check failed", "error", err)
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type operationRequest struct {
	Operation string          `json:"operation"`
	Variables json.RawMessage `json:"variables"`
	Token     string          `json:"token"`
}

func (s *HTTPServer) handleOperationPost(w http.ResponseWriter, r *http.Request) {
	var body operationRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	var vars Variables
	if len(body.Variables) > 0 && string(body.Variables) != "null" {
		if err := json.Unmarshal(body.Variables, &vars); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid variables", nil)
			return
		}
	}

	identity := s.resolver.Resolve(s.carriers(r, body.Token))
	s.execute(w, r.WithContext(auth.WithIdentity(r.Context(), identity)), body.Operation, vars, true)
}

func (s *HTTPServer) handleOperationGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	vars, err := variablesFromQuery(query)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	identity := s.resolver.Resolve(s.carriers(r, ""))
	s.execute(w, r.WithContext(auth.WithIdentity(r.Context(), identity)), query.Get("operation"), vars, false)
}

func (s *HTTPServer) execute(w http.ResponseWriter, r *http.Request, name string, vars Variables, allowMutation bool) {
	if name == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "operation is required", nil)
		return
	}
	result, err := s.service.Execute(r.Context(), name, auth.IdentityFromContext(r.Context()), vars, allowMutation)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{name: result}})
}

func (s *HTTPServer) carriers(r *http.Request, bodyToken string) auth.Carriers {
	return auth.Carriers{
		Body:   bodyToken,
		Query:  r.URL.Query().Get("token"),
		Header: r.Header.Get("Authorization"),
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestIDFromContext returns the id the middleware attached, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, CodeServerError, "Server error", nil
}
