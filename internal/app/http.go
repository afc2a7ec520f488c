package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"podnotes/api/internal/export"
	"podnotes/api/internal/outline"
	"podnotes/api/internal/rbac"
	"podnotes/api/internal/search"
	"podnotes/api/internal/session"
	"podnotes/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	sockets    *session.Handler
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, sockets *session.Handler, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, sockets: sockets, corsOrigin: corsOrigin, log: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Name string `json:"name"`
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, claims, err := s.service.Login(body.Name, body.Role)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     token,
			"userId":    claims.Sub,
			"userName":  claims.Name,
			"role":      claims.Role,
			"expiresAt": claims.ExpiresAt().UTC(),
		})
		return
	}

	who, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userId": who.UserID, "userName": who.UserName, "role": who.Role})
		return
	}

	if r.URL.Path == "/api/search" && r.Method == http.MethodGet {
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
			Text:        q.Get("q"),
			ContainerID: q.Get("container"),
			Limit:       queryInt(q.Get("limit"), 20),
			Offset:      queryInt(q.Get("offset"), 0),
		}))
		return
	}

	if r.URL.Path == "/api/search/reindex" && r.Method == http.MethodPost {
		if !s.allow(w, who, rbac.ActionAdmin) {
			return
		}
		go s.service.Reindex(context.WithoutCancel(r.Context()))
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "containers" {
		s.handleContainers(w, r, who, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
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
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleContainers(w http.ResponseWriter, r *http.Request, who Identity, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodPost:
			if !s.allow(w, who, rbac.ActionWrite) {
				return
			}
			var body struct {
				OwnerType string `json:"ownerType"`
				OwnerID   string `json:"ownerId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			container, err := s.service.Bootstrap(r.Context(), body.OwnerType, body.OwnerID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, containerJSON(container))
		case http.MethodGet:
			if !s.allow(w, who, rbac.ActionRead) {
				return
			}
			container, err := s.service.Lookup(r.Context(), r.URL.Query().Get("ownerType"), r.URL.Query().Get("ownerId"))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, containerJSON(container))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	containerID := parts[0]
	resource := ""
	if len(parts) >= 2 {
		resource = parts[1]
	}
	if len(parts) > 3 || (len(parts) == 3 && resource != "archive") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	if resource == "archive" {
		s.handleArchive(w, r, who, containerID, parts[2:])
		return
	}

	switch {
	case r.Method == http.MethodGet && resource == "nodes":
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		nodes, err := s.service.Snapshot(r.Context(), containerID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"containerId": containerID, "nodes": nodes})

	case r.Method == http.MethodPost && resource == "operations":
		if !s.allow(w, who, rbac.ActionWrite) {
			return
		}
		var body struct {
			Op     string          `json:"op"`
			Params json.RawMessage `json:"params"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		op, err := outline.ParseOperation(body.Op, body.Params)
		if err != nil {
			s.fail(w, err)
			return
		}
		result, err := s.service.Apply(r.Context(), containerID, who, op)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodGet && resource == "presence":
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"containerId": containerID, "presence": s.service.Presence(containerID)})

	case r.Method == http.MethodGet && resource == "export":
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			s.fail(w, err)
			return
		}
		result, err := s.service.Export(r.Context(), export.Request{ContainerID: containerID, Format: format, Title: r.URL.Query().Get("title")})
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	case r.Method == http.MethodGet && resource == "ws":
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		s.sockets.Serve(w, r, containerID, who.UserID, !rbac.Can(who.Role, rbac.ActionWrite))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request, who Identity, containerID string, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		if !s.allow(w, who, rbac.ActionWrite) {
			return
		}
		var body struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		commit, err := s.service.Archive(r.Context(), containerID, who, body.Title, body.Message)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, commit)

	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		commits, err := s.service.ArchiveHistory(r.Context(), containerID, queryInt(r.URL.Query().Get("limit"), 50))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"containerId": containerID, "commits": commits})

	case r.Method == http.MethodGet && len(rest) == 1:
		if !s.allow(w, who, rbac.ActionRead) {
			return
		}
		markdown, commit, err := s.service.ArchivedMarkdown(containerID, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("X-Archive-Commit", commit.Hash)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(markdown))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	who, err := s.service.Identify(token, r.Header.Get("X-User-ID"), r.Header.Get("X-User-Role"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Identity{}, false
	}
	return who, true
}

// allow writes a 403 Forbidden response unless the role may perform action.
func (s *HTTPServer) allow(w http.ResponseWriter, who Identity, action rbac.Action) bool {
	if rbac.Can(who.Role, action) {
		return true
	}
	s.log.Info().Str("user_id", who.UserID).Str("role", string(who.Role)).Str("action", string(action)).Msg("access denied")
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	return false
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
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

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-ID, X-User-Role")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
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

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func containerJSON(c store.Container) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"ownerType": c.OwnerType,
		"ownerId":   c.OwnerID,
		"version":   c.Version,
		"createdAt": c.CreatedAt,
	}
}
