package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"library-automation/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.Kind
	}{
		{name: "not_found", err: status.Error(codes.NotFound, "no doc"), kind: errs.KindNotFound},
		{name: "already_exists", err: status.Error(codes.AlreadyExists, "dup"), kind: errs.KindConflict},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), kind: errs.KindStoreUnavailable},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "slow"), kind: errs.KindStoreUnavailable},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), kind: errs.KindStoreUnavailable},
		{name: "permission", err: status.Error(codes.PermissionDenied, "rules"), kind: errs.KindInternal},
		{name: "missing_index", err: status.Error(codes.FailedPrecondition, "The query requires an index"), kind: errs.KindInternal},
		{name: "invalid_query", err: status.Error(codes.InvalidArgument, "bad filter"), kind: errs.KindInternal},
		{name: "context", err: fmt.Errorf("rpc: %w", context.DeadlineExceeded), kind: errs.KindStoreUnavailable},
		{name: "plain", err: errors.New("socket closed"), kind: errs.KindStoreUnavailable},
		{name: "typed_passthrough", err: errs.New(errs.KindAlreadyReturned, "book already returned"), kind: errs.KindAlreadyReturned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.Error(t, got)
			assert.Equal(t, tt.kind, errs.KindOf(got))
		})
	}
	assert.NoError(t, mapError(nil, "op"))
}

func TestMapErrorMissingIndexIsServerError(t *testing.T) {
	err := mapError(status.Error(codes.FailedPrecondition, "The query requires an index"), "querying loans")
	assert.Equal(t, http.StatusInternalServerError, errs.MetadataFor(errs.KindOf(err)).HTTPStatus)
	assert.False(t, errs.Retryable(err))
}

func TestIdentityToolkitSignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "web-key", r.URL.Query().Get("key"))

		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"INVALID_LOGIN_CREDENTIALS"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"localId":"uid-1","email":"ada@example.com","idToken":"tok","refreshToken":"ref","expiresIn":"3600"}`))
	}))
	defer srv.Close()

	tk := NewIdentityToolkit("web-key", srv.Client()).WithBaseURL(srv.URL)

	res, err := tk.SignIn(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", res.UID)
	assert.Equal(t, "tok", res.IDToken)
	assert.Equal(t, "3600", res.ExpiresIn)

	_, err = tk.SignIn(context.Background(), "ada@example.com", "wrong")
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
}

func TestIdentityToolkitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   errs.Kind
	}{
		{name: "disabled", status: http.StatusBadRequest, body: `{"error":{"message":"USER_DISABLED"}}`, kind: errs.KindForbidden},
		{name: "server_error", status: http.StatusBadGateway, body: `oops`, kind: errs.KindStoreUnavailable},
		{name: "unknown_rejection", status: http.StatusBadRequest, body: `{"error":{"message":"TOO_MANY_ATTEMPTS_TRY_LATER"}}`, kind: errs.KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewIdentityToolkit("k", srv.Client()).WithBaseURL(srv.URL).SignIn(context.Background(), "a@b.c", "p")
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestIdentityToolkitRequiresAPIKey(t *testing.T) {
	_, err := NewIdentityToolkit("", nil).SignIn(context.Background(), "a@b.c", "p")
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
}

type deleterStub struct {
	err   error
	calls []string
}

func (d *deleterStub) DeleteUser(ctx context.Context, uid string) error {
	d.calls = append(d.calls, uid)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return d.err
}

func TestRollbackAccount(t *testing.T) {
	cause := errs.New(errs.KindStoreUnavailable, "creating user")

	ok := &deleterStub{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rollbackAccount(ctx, ok, "uid-1", cause)
	assert.Same(t, cause, err)
	assert.Equal(t, []string{"uid-1"}, ok.calls)

	failing := &deleterStub{err: errors.New("auth backend down")}
	err = rollbackAccount(context.Background(), failing, "uid-2", cause)
	require.Error(t, err)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	assert.Contains(t, err.Error(), "uid-2")
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "auth backend down")
}
