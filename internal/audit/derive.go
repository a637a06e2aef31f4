package audit

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"equiptrack.io/internal/ids"
)

// Relevant reports whether a finalized request should produce an audit entry:
// the identity must be resolved and the method must imply mutation. Read-only
// views of the caller's own records (GET /auth/me, GET /users/profile) fall
// out of the method filter.
func Relevant(info RequestInfo) bool {
	if info.UserID == "" {
		return false
	}
	switch info.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// actionFor maps the HTTP method to the domain action, with overrides for the
// credential endpoints.
func actionFor(method, path string) string {
	if strings.Contains(path, "login") {
		return "login"
	}
	if strings.Contains(path, "logout") {
		return "logout"
	}
	switch method {
	case http.MethodPost:
		return "created"
	case http.MethodPut, http.MethodPatch:
		return "updated"
	case http.MethodDelete:
		return "deleted"
	}
	return strings.ToLower(method)
}

// entityTypeFor classifies the touched entity by path prefix.
func entityTypeFor(path string) string {
	switch {
	case strings.Contains(path, "/users"):
		return "user"
	case strings.Contains(path, "/equipment"):
		return "equipment"
	case strings.Contains(path, "/events"):
		return "event"
	case strings.Contains(path, "/teams"):
		return "team"
	case strings.Contains(path, "/maintenance"):
		return "maintenance"
	}
	return "unknown"
}

// entityIDFrom scans path segments for a well-formed identifier token.
// Both ULIDs (our ids) and UUIDs (legacy clients) are accepted.
func entityIDFrom(path string) string {
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if ids.IsULID(part) {
			return part
		}
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}

// build derives the persisted entry from a finalized request.
func build(info RequestInfo) *Entry {
	e := &Entry{
		ID:         ids.New(),
		CompanyID:  info.CompanyID,
		UserID:     info.UserID,
		Action:     actionFor(info.Method, info.Path),
		EntityType: entityTypeFor(info.Path),
		EntityID:   entityIDFrom(info.Path),
		IPAddress:  info.IPAddress,
		UserAgent:  info.UserAgent,
		CreatedAt:  info.At,
	}
	if info.Method == http.MethodPut || info.Method == http.MethodPatch {
		e.OldValues = compactJSON(info.RequestBody)
	}
	if info.StatusCode < 400 {
		e.NewValues = compactJSON(info.ResponseBody)
	}
	return e
}

// compactJSON keeps only well-formed JSON bodies; anything else is dropped
// rather than persisting raw bytes into a jsonb column.
func compactJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}
