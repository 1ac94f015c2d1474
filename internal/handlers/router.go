package handlers

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"library-automation/internal/config"
	"library-automation/internal/firebase"
	"library-automation/internal/ledger"
	"library-automation/internal/logger"
	"library-automation/internal/middleware"
	"library-automation/internal/models"
)

// BookCatalog manages catalog entries. The availability counter is owned by the ledger.
type BookCatalog interface {
	ListBooks(ctx context.Context) ([]*models.Book, error)
	SearchBooks(ctx context.Context, term string) ([]*models.Book, error)
	GetBook(ctx context.Context, id string) (*models.Book, error)
	CreateBook(ctx context.Context, book *models.Book) error
	UpdateBook(ctx context.Context, id string, update models.BookUpdate, at time.Time) (*models.Book, error)
	DeleteBook(ctx context.Context, id string) error
}

// UserDirectory manages user profiles.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, update models.UserUpdate, at time.Time) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Authenticator registers accounts and signs users in.
type Authenticator interface {
	Register(ctx context.Context, name, email, password string, role models.UserRole) (*models.User, error)
	Login(ctx context.Context, email, password string) (*firebase.SignInResult, *models.User, error)
}

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the router. A nil Verifier disables token checks and runs every
// request as DevUser; a nil Auth leaves /api/auth unmounted.
type Deps struct {
	Ledger   *ledger.Ledger
	Books    BookCatalog
	Users    UserDirectory
	Auth     Authenticator
	Verifier middleware.TokenVerifier
	Limiter  middleware.RateLimiter

	RateLimit   config.RateLimitConfig
	CORSOrigins []string
	// TrustedProxies may set X-Forwarded-For; everyone else is keyed by peer address.
	TrustedProxies []netip.Prefix

	Checks   map[string]Pinger
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
}

// DevUser is the identity used when authentication is disabled.
var DevUser = &models.User{
	ID:     "dev",
	Name:   "Development",
	Role:   models.RoleAdmin,
	Status: models.UserStatusActive,
}

// NewRouter mounts health, metrics and the /api tree.
func NewRouter(deps Deps) http.Handler {
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	borrowings := NewBorrowingsHandler(deps.Ledger, logg)
	books := NewBooksHandler(deps.Books, deps.Ledger, logg)
	users := NewUsersHandler(deps.Users, deps.Ledger, logg)
	health := NewHealthHandler(deps.Checks, logg)

	r := chi.NewRouter()
	r.Use(middleware.ClientIP(deps.TrustedProxies))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))
	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.CORS(deps.CORSOrigins))

	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	authenticate := middleware.StaticUser(DevUser)
	if deps.Verifier != nil {
		authenticate = middleware.Authenticate(deps.Verifier, deps.Users, logg)
	}
	borrowLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "borrow",
		Window: deps.RateLimit.BorrowWindow,
		Limit:  deps.RateLimit.BorrowLimit,
	}, deps.Limiter, logg)
	loginLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "login",
		Window: deps.RateLimit.LoginWindow,
		Limit:  deps.RateLimit.LoginLimit,
	}, deps.Limiter, logg)

	r.Route("/api", func(r chi.Router) {
		if deps.Auth != nil {
			auth := NewAuthHandler(deps.Auth, logg)
			r.Route("/auth", func(r chi.Router) {
				r.Use(loginLimit)
				r.Post("/register", auth.Register)
				r.Post("/login", auth.Login)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/borrowings", func(r chi.Router) {
				r.Get("/user/{userId}", borrowings.ListByUser)
				r.With(borrowLimit).Post("/", borrowings.Create)
				r.Put("/{id}/return", borrowings.Return)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireStaff)
					r.Get("/", borrowings.List)
					r.Get("/overdue", borrowings.ListOverdue)
					r.Get("/reconcile", borrowings.Reconcile)
				})
			})

			r.Route("/books", func(r chi.Router) {
				r.Get("/", books.List)
				r.Get("/{id}", books.Get)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireStaff)
					r.Post("/", books.Create)
					r.Patch("/{id}", books.Update)
					r.Put("/{id}", books.Update)
					r.Delete("/{id}", books.Delete)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", users.Me)
				r.Get("/{id}", users.Get)
				r.Get("/{id}/borrowings", users.Borrowings)
				r.Get("/{id}/active-borrowings", users.ActiveBorrowings)
				r.Patch("/{id}", users.Update)
				r.Put("/{id}", users.Update)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireStaff)
					r.Get("/", users.List)
					r.Delete("/{id}", users.Delete)
				})
			})
		})
	})

	return r
}
