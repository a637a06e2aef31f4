package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"equiptrack.io/internal/audit"
	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/ids"
	"equiptrack.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	maxCapturedBody = 64 << 10
)

type requestIDKey struct{}
type identityHolderKey struct{}

// identityHolder lets the logging middleware, which runs before identity
// resolution, see the identity the auth stage resolved downstream.
type identityHolder struct {
	id *auth.Identity
}

// RequestIDFromContext returns the request id assigned by the pipeline.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if rid == "" {
			rid = ids.New()
		}
		w.Header().Set("X-Request-Id", rid)
		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holder := &identityHolder{}
		ctx := context.WithValue(r.Context(), identityHolderKey{}, holder)

		sw := &captureWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))

		fields := map[string]any{
			"event":       "http_request",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  RequestIDFromContext(ctx),
			"ip":          clientIP(r),
		}
		if holder.id != nil {
			fields["user"] = holder.id.Email
		}
		obs.LogRequest(fields)
	})
}

// Exempt from rate limiting: probes, metrics and static file serving.
func rateLimitExempt(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/files/")
}

func (a *API) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil || rateLimitExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		res, err := a.limiter.CheckAndIncrement(r.Context(), a.rateLimitKey(r), time.Now().UTC())
		if err != nil {
			// Limiter backend failure must not take the API down.
			obs.Logger().Printf(`{"event":"ratelimit_error","error":%q}`, err.Error())
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			obs.RateLimitRejected.Inc()
			writeError(w, r, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitKey prefers a stable identity over the client address. The token
// subject is read without verification here; a forged subject only shifts
// which bucket counts the request, authentication still happens later.
func (a *API) rateLimitKey(r *http.Request) string {
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		if sub, ok := a.auth.TokenSubject(token); ok {
			return "user:" + sub
		}
	}
	if ip := clientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "unknown"
}

type publicRoute struct {
	method string
	path   string
	prefix bool
}

var publicRoutes = []publicRoute{
	{method: http.MethodPost, path: "/auth/register-company"},
	{method: http.MethodPost, path: "/auth/login"},
	{method: http.MethodGet, path: "/auth/invitation/", prefix: true},
	{method: http.MethodPost, path: "/auth/accept-invitation/", prefix: true},
	{method: http.MethodGet, path: "/healthz"},
	{method: http.MethodGet, path: "/readyz"},
	{method: http.MethodGet, path: "/metrics"},
	{method: http.MethodGet, path: "/files/", prefix: true},
}

func isPublicRoute(method, path string) bool {
	for _, p := range publicRoutes {
		if p.method != method {
			continue
		}
		if p.prefix && strings.HasPrefix(path, p.path) {
			return true
		}
		if !p.prefix && path == p.path {
			return true
		}
	}
	return false
}

// Credential endpoints take a secret guess per request, so they sit behind the
// token-bucket guard in addition to the fixed-window limiter.
func isCredentialRoute(method, path string) bool {
	if method != http.MethodPost {
		return false
	}
	return path == "/auth/login" ||
		path == "/auth/register-company" ||
		strings.HasPrefix(path, "/auth/accept-invitation/")
}

func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicRoute(r.Method, r.URL.Path) {
			if isCredentialRoute(r.Method, r.URL.Path) && !a.loginGuard.allow(clientIP(r)) {
				writeError(w, r, http.StatusTooManyRequests, "too many attempts, please try again later")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		id, err := a.auth.Resolve(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		if holder, ok := r.Context().Value(identityHolderKey{}).(*identityHolder); ok {
			holder.id = &id
		}
		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithTenant(ctx, auth.Derive(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) withAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.recorder == nil || !auditableMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		// Capture at most maxCapturedBody bytes; the remainder stays on the
		// original reader so large uploads are never buffered here.
		var reqBody []byte
		if r.Body != nil {
			reqBody, _ = io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(reqBody), r.Body))
		}

		sw := &captureWriter{ResponseWriter: w, code: http.StatusOK, capture: true}
		start := time.Now().UTC()
		next.ServeHTTP(sw, r)

		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			if holder, hok := r.Context().Value(identityHolderKey{}).(*identityHolder); hok && holder.id != nil {
				id, ok = *holder.id, true
			}
		}
		if !ok {
			return
		}

		a.recorder.Record(audit.RequestInfo{
			UserID:       id.UserID,
			CompanyID:    id.CompanyID,
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   sw.code,
			RequestBody:  reqBody,
			ResponseBody: sw.body.Bytes(),
			IPAddress:    clientIP(r),
			UserAgent:    r.UserAgent(),
			Duration:     time.Since(start),
			At:           start,
		})
	})
}

func auditableMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type captureWriter struct {
	http.ResponseWriter
	code    int
	wrote   bool
	capture bool
	body    bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if !w.wrote {
		w.code = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.wrote = true
	if w.capture && w.body.Len() < maxCapturedBody {
		room := maxCapturedBody - w.body.Len()
		if room > len(b) {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// credentialGuard throttles credential endpoints per client IP with a token
// bucket, separate from the fixed-window limiter that covers the whole API.
type credentialGuard struct {
	mu      sync.Mutex
	buckets map[string]*guardBucket
}

type guardBucket struct {
	lim *rate.Limiter
	ts  time.Time
}

const guardTTL = 10 * time.Minute

func newCredentialGuard() *credentialGuard {
	return &credentialGuard{buckets: make(map[string]*guardBucket)}
}

func (g *credentialGuard) allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for k, b := range g.buckets {
		if now.Sub(b.ts) > guardTTL {
			delete(g.buckets, k)
		}
	}
	b, ok := g.buckets[ip]
	if !ok {
		b = &guardBucket{lim: rate.NewLimiter(rate.Every(6*time.Second), 10)}
		g.buckets[ip] = b
	}
	b.ts = now
	return b.lim.Allow()
}
