package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-automation/internal/config"
	"library-automation/internal/errs"
	"library-automation/internal/firebase"
	"library-automation/internal/ledger"
	"library-automation/internal/memstore"
	"library-automation/internal/metrics"
	"library-automation/internal/models"
	"library-automation/internal/responses"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type tokens map[string]string

func (t tokens) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	if uid, ok := t[token]; ok {
		return &auth.Token{UID: uid}, nil
	}
	return nil, errors.New("invalid token")
}

type server struct {
	t     *testing.T
	store *memstore.Store
	clock *testClock
	h     http.Handler
}

func newServer(t *testing.T, configure func(*Deps)) *server {
	t.Helper()
	store := memstore.New()
	clock := &testClock{now: epoch}
	reg := prometheus.NewRegistry()
	l := ledger.New(store, ledger.WithClock(clock), ledger.WithMetrics(metrics.NewLedgerMetrics(reg)))
	deps := Deps{
		Ledger:   l,
		Books:    store,
		Users:    store,
		Gatherer: reg,
		Checks:   map[string]Pinger{"store": store},
		RateLimit: config.RateLimitConfig{
			BorrowWindow: time.Minute,
			BorrowLimit:  100,
		},
	}
	if configure != nil {
		configure(&deps)
	}
	return &server{t: t, store: store, clock: clock, h: NewRouter(deps)}
}

func (s *server) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *server) seed() *models.Book {
	s.store.PutUser(&models.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: models.RoleUser, Status: models.UserStatusActive})
	return s.store.PutBook(&models.Book{Title: "Dune", Author: "Herbert", ISBN: "9780441013593", Category: "SF", Quantity: 3, Available: 3})
}

func TestBorrowingLifecycle(t *testing.T) {
	s := newServer(t, nil)
	book := s.seed()

	w := s.do(http.MethodPost, "/api/borrowings", map[string]string{
		"userId":  "u1",
		"bookId":  book.ID,
		"dueDate": epoch.AddDate(0, 0, 14).Format(time.RFC3339),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decodeBody[models.Loan](t, w)
	assert.Equal(t, models.LoanStatusBorrowed, loan.Status)
	assert.Nil(t, loan.ReturnDate)
	assert.Contains(t, w.Body.String(), `"returnDate":null`)

	got, err := s.store.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Available)

	s.clock.now = epoch.AddDate(0, 0, 20)
	w = s.do(http.MethodGet, "/api/borrowings/overdue", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	overdue := decodeBody[[]models.Loan](t, w)
	require.Len(t, overdue, 1)
	assert.Equal(t, loan.ID, overdue[0].ID)

	w = s.do(http.MethodPut, "/api/borrowings/"+loan.ID+"/return", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	returned := decodeBody[models.Loan](t, w)
	assert.Equal(t, models.LoanStatusReturned, returned.Status)
	assert.Equal(t, 6.0, returned.Fine)

	got, err = s.store.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Available)

	w = s.do(http.MethodPut, "/api/borrowings/"+loan.ID+"/return", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeBody[responses.ErrorEnvelope](t, w)
	assert.Equal(t, string(errs.KindAlreadyReturned), env.Error.Code)

	w = s.do(http.MethodGet, "/api/borrowings/user/u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Loan](t, w), 1)

	w = s.do(http.MethodGet, "/api/borrowings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Loan](t, w), 1)
}

func TestCreateBorrowingErrors(t *testing.T) {
	s := newServer(t, nil)
	book := s.seed()
	one := 1
	_, err := s.store.UpdateBook(context.Background(), book.ID, models.BookUpdate{Quantity: &one}, epoch)
	require.NoError(t, err)

	due := epoch.AddDate(0, 0, 7).Format("2006-01-02")
	tests := []struct {
		name   string
		body   any
		status int
		code   errs.Kind
	}{
		{name: "missing_fields", body: map[string]string{"userId": "u1"}, status: http.StatusBadRequest, code: errs.KindValidation},
		{name: "bad_date", body: map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": "soon"}, status: http.StatusBadRequest, code: errs.KindValidation},
		{name: "unknown_book", body: map[string]string{"userId": "u1", "bookId": "nope", "dueDate": due}, status: http.StatusNotFound, code: errs.KindNotFound},
		{name: "first_copy", body: map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": due}, status: http.StatusCreated},
		{name: "no_copies_left", body: map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": due}, status: http.StatusBadRequest, code: errs.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/borrowings", tt.body, "")
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				env := decodeBody[responses.ErrorEnvelope](t, w)
				assert.Equal(t, string(tt.code), env.Error.Code)
			}
		})
	}
}

func TestReturnUnknownBorrowing(t *testing.T) {
	s := newServer(t, nil)
	w := s.do(http.MethodPut, "/api/borrowings/missing/return", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBooksCRUD(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodPost, "/api/books", map[string]any{
		"title": "Emma", "author": "Austen", "isbn": "9780141439587", "category": "Classic", "quantity": 2,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	book := decodeBody[models.Book](t, w)
	assert.Equal(t, 2, book.Available)

	w = s.do(http.MethodPost, "/api/books", map[string]any{"title": "No author"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, "/api/books/"+book.ID, map[string]any{"quantity": 5}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeBody[models.Book](t, w)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, 5, updated.Available)

	w = s.do(http.MethodGet, "/api/books?q=austen", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Book](t, w), 1)

	w = s.do(http.MethodDelete, "/api/books/"+book.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/books/"+book.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBookWithOpenLoanConflicts(t *testing.T) {
	s := newServer(t, nil)
	book := s.seed()
	w := s.do(http.MethodPost, "/api/borrowings", map[string]string{
		"userId": "u1", "bookId": book.ID, "dueDate": "2024-03-15",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodDelete, "/api/books/"+book.ID, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPatch, "/api/books/"+book.ID, map[string]any{"quantity": 0}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodDelete, "/api/users/u1", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUserEndpoints(t *testing.T) {
	s := newServer(t, nil)
	book := s.seed()
	for i := 0; i < 2; i++ {
		s.clock.now = epoch.Add(time.Duration(i) * time.Hour)
		w := s.do(http.MethodPost, "/api/borrowings", map[string]string{
			"userId": "u1", "bookId": book.ID, "dueDate": "2024-03-15",
		}, "")
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(http.MethodGet, "/api/users/u1/borrowings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	history := decodeBody[[]models.Loan](t, w)
	require.Len(t, history, 2)
	assert.True(t, history[0].BorrowDate.After(history[1].BorrowDate))

	w = s.do(http.MethodPut, "/api/borrowings/"+history[0].ID+"/return", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/users/u1/active-borrowings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	active := decodeBody[[]models.Loan](t, w)
	require.Len(t, active, 1)
	assert.Equal(t, history[1].ID, active[0].ID)

	w = s.do(http.MethodPatch, "/api/users/u1", map[string]any{"status": "suspended"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.UserStatusSuspended, decodeBody[models.User](t, w).Status)

	w = s.do(http.MethodPatch, "/api/users/u1", map[string]any{"role": "root"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/users", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.User](t, w), 1)
}

func TestAccessControl(t *testing.T) {
	s := newServer(t, func(d *Deps) {
		d.Verifier = tokens{"reader-token": "u1", "staff-token": "s1", "other-token": "u2"}
	})
	book := s.seed()
	s.store.PutUser(&models.User{ID: "s1", Role: models.RoleStaff, Status: models.UserStatusActive})
	s.store.PutUser(&models.User{ID: "u2", Role: models.RoleUser, Status: models.UserStatusActive})

	borrow := map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": "2024-03-15"}

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/books", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/books", nil, "reader-token").Code)
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/borrowings", borrow, "staff-token").Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/borrowings/user/u1", nil, "reader-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/borrowings/user/u1", nil, "other-token").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/borrowings/user/u1", nil, "staff-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/borrowings/overdue", nil, "reader-token").Code)

	w := s.do(http.MethodGet, "/api/users/me", nil, "other-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u2", decodeBody[models.User](t, w).ID)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/u2", map[string]any{"role": "staff"}, "staff-token").Code)
}

func TestReaderSelfService(t *testing.T) {
	s := newServer(t, func(d *Deps) {
		d.Verifier = tokens{"reader-token": "u1", "other-token": "u2"}
	})
	book := s.seed()
	s.store.PutUser(&models.User{ID: "u2", Name: "Grace", Role: models.RoleUser, Status: models.UserStatusActive})

	forOther := map[string]string{"userId": "u2", "bookId": book.ID, "dueDate": "2024-03-15"}
	w := s.do(http.MethodPost, "/api/borrowings", forOther, "reader-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	forSelf := map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": "2024-03-15"}
	w = s.do(http.MethodPost, "/api/borrowings", forSelf, "reader-token")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decodeBody[models.Loan](t, w)
	assert.Equal(t, "u1", loan.UserID)

	w = s.do(http.MethodPut, "/api/borrowings/"+loan.ID+"/return", nil, "other-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	current, err := s.store.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Available)

	w = s.do(http.MethodPut, "/api/borrowings/"+loan.ID+"/return", nil, "reader-token")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.LoanStatusReturned, decodeBody[models.Loan](t, w).Status)

	w = s.do(http.MethodPut, "/api/users/u1", map[string]any{"name": "Ada L."}, "reader-token")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ada L.", decodeBody[models.User](t, w).Name)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/u1", map[string]any{"status": "active"}, "reader-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/u1", map[string]any{"email": "ada@new.example"}, "reader-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/u2", map[string]any{"name": "Mallory"}, "reader-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/users/u2", nil, "reader-token").Code)
}

func TestStaffCannotTakeOverPrivilegedAccounts(t *testing.T) {
	s := newServer(t, func(d *Deps) {
		d.Verifier = tokens{"staff-token": "s1", "admin-token": "a1"}
	})
	s.seed()
	s.store.PutUser(&models.User{ID: "s1", Email: "staff@example.com", Role: models.RoleStaff, Status: models.UserStatusActive})
	s.store.PutUser(&models.User{ID: "s2", Email: "staff2@example.com", Role: models.RoleStaff, Status: models.UserStatusActive})
	s.store.PutUser(&models.User{ID: "a1", Email: "admin@example.com", Role: models.RoleAdmin, Status: models.UserStatusActive})

	takeover := map[string]any{"email": "staff-owned@evil.test", "status": "suspended"}
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/a1", takeover, "staff-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/a1", map[string]any{"status": "suspended"}, "staff-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/s2", map[string]any{"status": "inactive"}, "staff-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, "/api/users/u1", map[string]any{"email": "x@evil.test"}, "staff-token").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/users/a1", nil, "staff-token").Code)

	admin, err := s.store.GetUser(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", admin.Email)
	assert.Equal(t, models.UserStatusActive, admin.Status)

	w := s.do(http.MethodPatch, "/api/users/u1", map[string]any{"status": "suspended"}, "staff-token")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.UserStatusSuspended, decodeBody[models.User](t, w).Status)

	w = s.do(http.MethodPatch, "/api/users/s2", map[string]any{"email": "staff2@new.example"}, "admin-token")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "staff2@new.example", decodeBody[models.User](t, w).Email)
}

type limiterStub struct{ hits int64 }

func (l *limiterStub) FixedWindowAllow(_ context.Context, _ string, limit int64, _ time.Duration) (bool, int64, error) {
	l.hits++
	return l.hits <= limit, l.hits, nil
}

func TestBorrowRateLimit(t *testing.T) {
	s := newServer(t, func(d *Deps) {
		d.Limiter = &limiterStub{}
		d.RateLimit.BorrowLimit = 1
	})
	book := s.seed()
	borrow := map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": "2024-03-15"}

	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/borrowings", borrow, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/borrowings", borrow, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/borrowings", nil, "").Code)
}

func TestReconcileEndpoint(t *testing.T) {
	s := newServer(t, nil)
	s.seed()
	s.store.PutBook(&models.Book{Title: "Drifted", Quantity: 2, Available: 1})

	w := s.do(http.MethodGet, "/api/borrowings/reconcile", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody[ledger.ReconcileReport](t, w)
	assert.Equal(t, 2, report.BooksChecked)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, ledger.ReasonCountMismatch, report.Discrepancies[0].Reason)
}

type authStub struct{}

func (authStub) Register(_ context.Context, name, email, _ string, role models.UserRole) (*models.User, error) {
	if email == "taken@example.com" {
		return nil, errs.New(errs.KindConflict, "email already registered")
	}
	return &models.User{ID: "new-uid", Name: name, Email: email, Role: role, Status: models.UserStatusActive}, nil
}

func (authStub) Login(_ context.Context, email, password string) (*firebase.SignInResult, *models.User, error) {
	if password != "secret" {
		return nil, nil, errs.New(errs.KindUnauthorized, "invalid email or password")
	}
	return &firebase.SignInResult{UID: "uid-1", IDToken: "tok"},
		&models.User{ID: "uid-1", Name: "Ada", Role: models.RoleStaff}, nil
}

func TestAuthEndpoints(t *testing.T) {
	s := newServer(t, func(d *Deps) { d.Auth = authStub{} })

	w := s.do(http.MethodPost, "/api/auth/register", map[string]string{"name": "Ada", "email": "ada@example.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.RoleUser, decodeBody[models.User](t, w).Role)

	w = s.do(http.MethodPost, "/api/auth/register", map[string]string{"name": "Ada", "email": "taken@example.com", "password": "secret1"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/auth/register", map[string]string{"name": "Ada", "email": "not-an-email", "password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "secret"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	login := decodeBody[map[string]any](t, w)
	assert.Equal(t, "tok", login["idToken"])
	assert.Equal(t, "staff", login["role"])

	w = s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", nil, "").Code)

	s = newServer(t, func(d *Deps) { d.Checks["redis"] = failingPinger{} })
	w := s.do(http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unavailable"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	book := s.seed()
	s.do(http.MethodPost, "/api/borrowings", map[string]string{"userId": "u1", "bookId": book.ID, "dueDate": "2024-03-15"}, "")

	w := s.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "library_loans_created_total 1")
}
