package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"library-automation/internal/errs"
	"library-automation/internal/logger"
	"library-automation/internal/models"
	"library-automation/internal/responses"
)

type contextKey string

const (
	userKey contextKey = "user"
)

// TokenVerifier checks a Firebase ID token. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// UserLookup loads the profile stored for a Firebase UID.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Authenticate verifies the bearer token and puts the caller's profile in the context.
func Authenticate(verifier TokenVerifier, users UserLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(ctx, logg, w, errs.New(errs.KindUnauthorized, "missing or malformed Authorization header"))
				return
			}

			decoded, err := verifier.VerifyIDToken(ctx, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, errs.Wrap(errs.KindUnauthorized, err, "invalid token"))
				return
			}

			user, err := users.GetUser(ctx, decoded.UID)
			if err != nil {
				if errs.Is(err, errs.KindNotFound) {
					err = errs.Wrap(errs.KindUnauthorized, err, "user profile not found")
				}
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !user.IsActive() {
				responses.WriteError(ctx, logg, w, errs.New(errs.KindForbidden, "account is not active"))
				return
			}

			ctx = WithUser(ctx, user)
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaticUser authenticates every request as user. It stands in for
// Authenticate when auth is disabled.
func StaticUser(user *models.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole lets the request through when the caller has one of roles. Admins always pass.
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), nil, w, errs.New(errs.KindUnauthorized, "authentication required"))
				return
			}
			if user.Role == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), nil, w, errs.New(errs.KindForbidden, "insufficient role"))
		})
	}
}

// RequireStaff admits librarians and admins.
func RequireStaff(next http.Handler) http.Handler {
	return RequireRole(models.RoleStaff)(next)
}

// WithUser stores the authenticated caller in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated caller, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
