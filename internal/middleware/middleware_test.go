package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-automation/internal/errs"
	"library-automation/internal/logger"
	"library-automation/internal/models"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	uid, ok := f[token]
	if !ok {
		return nil, errors.New("token expired")
	}
	return &auth.Token{UID: uid}, nil
}

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	return u, nil
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(user.ID))
}

func TestAuthenticate(t *testing.T) {
	verifier := fakeVerifier{"good": "u1", "orphan": "u9", "blocked": "u2"}
	users := fakeUsers{
		"u1": {ID: "u1", Role: models.RoleUser, Status: models.UserStatusActive},
		"u2": {ID: "u2", Role: models.RoleUser, Status: models.UserStatusSuspended},
	}
	h := Authenticate(verifier, users, logger.Nop())(http.HandlerFunc(echoUser))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer good", status: http.StatusOK, body: "u1"},
		{name: "lowercase_scheme", header: "bearer good", status: http.StatusOK, body: "u1"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong_scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "bad_token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "no_profile", header: "Bearer orphan", status: http.StatusUnauthorized},
		{name: "suspended", header: "Bearer blocked", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/books", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireStaff(http.HandlerFunc(echoUser))

	tests := []struct {
		name   string
		user   *models.User
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "reader", user: &models.User{ID: "u1", Role: models.RoleUser}, status: http.StatusForbidden},
		{name: "staff", user: &models.User{ID: "s1", Role: models.RoleStaff}, status: http.StatusOK},
		{name: "admin", user: &models.User{ID: "a1", Role: models.RoleAdmin}, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/borrowings", nil)
			if tt.user != nil {
				r = r.WithContext(WithUser(r.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	policy := RateLimitPolicy{Name: "borrow", Window: time.Minute, Limit: 2}
	h := StaticUser(&models.User{ID: "s1", Role: models.RoleStaff})(
		RateLimit(policy, limiter, logger.Nop())(http.HandlerFunc(echoUser)))

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/borrowings", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int64(3), limiter.counts["borrow:user:s1"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	h := RateLimit(RateLimitPolicy{Name: "borrow", Window: time.Minute, Limit: 1}, limiter, logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	policy := RateLimitPolicy{Name: "login", Window: time.Minute, Limit: 2}
	h := ClientIP(nil)(RateLimit(policy, limiter, logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })))

	codes := []int{}
	for _, forged := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "203.0.113.7:52100"
		r.Header.Set("X-Forwarded-For", forged)
		r.Header.Set("X-Real-IP", forged)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int64(3), limiter.counts["login:ip:203.0.113.7"])
}

func TestClientIPResolution(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{name: "direct_client", remote: "198.51.100.4:1000", want: "198.51.100.4"},
		{name: "untrusted_peer_header_ignored", remote: "198.51.100.4:1000", xff: "1.2.3.4", want: "198.51.100.4"},
		{name: "trusted_proxy", remote: "10.1.2.3:443", xff: "198.51.100.9", want: "198.51.100.9"},
		{name: "rightmost_untrusted_hop", remote: "10.1.2.3:443", xff: "6.6.6.6, 198.51.100.9, 192.0.2.10", want: "198.51.100.9"},
		{name: "only_proxies", remote: "192.0.2.10:443", xff: "10.9.9.9", want: "192.0.2.10"},
		{name: "garbage_hop", remote: "10.1.2.3:443", xff: "not-an-ip", want: "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := ClientIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = ClientIPFromContext(r.Context())
			}))
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}

func TestRequestIDAndRecoverer(t *testing.T) {
	h := RequestID(logger.Nop())(Recoverer(logger.Nop())(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req-42")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
}

func TestLoggingRecordsStatus(t *testing.T) {
	h := Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusCreated, w.Code)
}
