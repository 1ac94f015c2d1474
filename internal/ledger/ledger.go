package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"library-automation/internal/errs"
	"library-automation/internal/logger"
	"library-automation/internal/metrics"
	"library-automation/internal/models"
)

// DefaultStoreTimeout bounds each store call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

const (
	opCreateLoan   = "create_loan"
	opReturnLoan   = "return_loan"
	opListOverdue  = "list_overdue"
	opListLoans    = "list_loans"
	opReconcile    = "reconcile"
	reasonClamped  = "available_exceeds_quantity"
	reasonNoBook   = "book_missing_on_return"
	reasonRollback = "compensation_failed"
)

// Ledger owns the loan lifecycle and the available-copy counter of each book.
type Ledger struct {
	store   Store
	clock   Clock
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithStoreTimeout bounds every individual store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger for state transitions and anomalies.
func WithLogger(logg *logger.Logger) Option {
	return func(l *Ledger) {
		if logg != nil {
			l.logg = logg
		}
	}
}

// WithMetrics records operation metrics on m.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New builds a ledger on top of store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		clock:   SystemClock,
		timeout: DefaultStoreTimeout,
		logg:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now exposes the ledger clock so callers evaluate overdue-ness against the same time source.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// CreateLoan lends one copy of bookID to userID until dueDate.
//
// The copy is taken with an atomic decrement-if-positive before the loan
// document is written; if that write fails the copy is put back.
func (l *Ledger) CreateLoan(ctx context.Context, userID, bookID string, dueDate time.Time) (loan *models.Loan, err error) {
	defer l.observe(ctx, opCreateLoan, time.Now(), &err)

	userID = strings.TrimSpace(userID)
	bookID = strings.TrimSpace(bookID)
	if err := validateLoanRequest(userID, bookID, dueDate); err != nil {
		return nil, err
	}

	book, err := call(ctx, l, func(ctx context.Context) (*models.Book, error) {
		return l.store.GetBook(ctx, bookID)
	})
	if err != nil {
		return nil, notFoundAs(err, "book not found")
	}
	if _, err := call(ctx, l, func(ctx context.Context) (*models.User, error) {
		return l.store.GetUser(ctx, userID)
	}); err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	if !book.IsAvailable() {
		return nil, errs.New(errs.KindUnavailable, "book is not available")
	}

	now := l.clock.Now()
	if _, err := call(ctx, l, func(ctx context.Context) (*models.Book, error) {
		return l.store.DecrementAvailable(ctx, bookID, now)
	}); err != nil {
		return nil, notFoundAs(err, "book not found")
	}

	loan = &models.Loan{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    dueDate.UTC(),
		ReturnDate: nil,
		Status:     models.LoanStatusBorrowed,
		Fine:       0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := call(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.store.InsertLoan(ctx, loan)
	}); err != nil {
		l.restoreCopy(ctx, bookID, now, err)
		return nil, err
	}

	logCtx := l.logg.WithFields(ctx, map[string]any{
		"loan_id": loan.ID,
		"book_id": bookID,
		"user_id": userID,
		"due":     loan.DueDate,
	})
	l.logg.Info(logCtx, "loan.created")
	l.metrics.IncCreated()
	return loan, nil
}

// ReturnLoan closes a borrowed loan, assessing the fine for full days past due.
//
// The copy is put back first; if the loan document cannot be transitioned
// afterwards the copy is taken again.
func (l *Ledger) ReturnLoan(ctx context.Context, loanID string) (loan *models.Loan, err error) {
	defer l.observe(ctx, opReturnLoan, time.Now(), &err)

	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, errs.New(errs.KindValidation, "loan id is required")
	}

	current, err := call(ctx, l, func(ctx context.Context) (*models.Loan, error) {
		return l.store.GetLoan(ctx, loanID)
	})
	if err != nil {
		return nil, notFoundAs(err, "borrowing not found")
	}
	if current.IsReturned() {
		return nil, errs.New(errs.KindAlreadyReturned, "book already returned")
	}

	returnDate := l.clock.Now()
	fine := models.CalculateFine(current.DueDate, returnDate)

	logCtx := l.logg.WithFields(ctx, map[string]any{
		"loan_id": loanID,
		"book_id": current.BookID,
		"user_id": current.UserID,
	})

	// Anomalies are reported only after the loan is closed.
	var (
		restored    bool
		bookMissing bool
		clamped     *models.Book
	)
	book, restoredCopy, err := call2(ctx, l, func(ctx context.Context) (*models.Book, bool, error) {
		return l.store.IncrementAvailable(ctx, current.BookID, returnDate)
	})
	switch {
	case errs.Is(err, errs.KindNotFound):
		bookMissing = true
	case err != nil:
		return nil, err
	case !restoredCopy:
		clamped = book
	default:
		restored = true
	}

	updated, err := call(ctx, l, func(ctx context.Context) (*models.Loan, error) {
		return l.store.MarkReturned(ctx, loanID, returnDate, fine)
	})
	if err != nil {
		if restored {
			l.takeCopyBack(ctx, current.BookID, returnDate, err)
		}
		return nil, notFoundAs(err, "borrowing not found")
	}

	if bookMissing {
		l.logg.Warn(logCtx, "loan.return.book_missing")
		l.metrics.IncInvariantViolation(reasonNoBook)
	}
	if clamped != nil {
		violation := errs.Newf(errs.KindInvariantViolation,
			"book %s already has all %d copies available", clamped.ID, clamped.Quantity)
		l.logg.Error(logCtx, "loan.return.inventory_clamped", violation)
		l.metrics.IncInvariantViolation(reasonClamped)
	}

	l.logg.Info(l.logg.WithField(logCtx, "fine", fine), "loan.returned")
	l.metrics.IncReturned(fine)
	return updated, nil
}

// GetLoan reads a single loan.
func (l *Ledger) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, errs.New(errs.KindValidation, "loan id is required")
	}
	loan, err := call(ctx, l, func(ctx context.Context) (*models.Loan, error) {
		return l.store.GetLoan(ctx, loanID)
	})
	if err != nil {
		return nil, notFoundAs(err, "borrowing not found")
	}
	return loan, nil
}

// ListOverdue returns borrowed loans whose due date is strictly before the current time.
func (l *Ledger) ListOverdue(ctx context.Context) (loans []*models.Loan, err error) {
	defer l.observe(ctx, opListOverdue, time.Now(), &err)

	now := l.clock.Now()
	candidates, err := l.query(ctx, LoanQuery{Status: models.LoanStatusBorrowed, DueBefore: now})
	if err != nil {
		return nil, err
	}
	overdue := make([]*models.Loan, 0, len(candidates))
	for _, loan := range candidates {
		if models.IsOverdue(loan, now) {
			overdue = append(overdue, loan)
		}
	}
	return overdue, nil
}

// ListAll returns every loan in the store.
func (l *Ledger) ListAll(ctx context.Context) (loans []*models.Loan, err error) {
	defer l.observe(ctx, opListLoans, time.Now(), &err)
	return l.query(ctx, LoanQuery{})
}

// ListByUser returns all loans of userID in store order.
func (l *Ledger) ListByUser(ctx context.Context, userID string) (loans []*models.Loan, err error) {
	defer l.observe(ctx, opListLoans, time.Now(), &err)
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.KindValidation, "user id is required")
	}
	return l.query(ctx, LoanQuery{UserID: userID})
}

// History returns all loans of userID, newest borrow first.
func (l *Ledger) History(ctx context.Context, userID string) (loans []*models.Loan, err error) {
	defer l.observe(ctx, opListLoans, time.Now(), &err)
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.KindValidation, "user id is required")
	}
	return l.query(ctx, LoanQuery{UserID: userID, NewestFirst: true})
}

// ListActiveByUser returns the loans userID has not returned yet.
func (l *Ledger) ListActiveByUser(ctx context.Context, userID string) (loans []*models.Loan, err error) {
	defer l.observe(ctx, opListLoans, time.Now(), &err)
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.KindValidation, "user id is required")
	}
	return l.query(ctx, LoanQuery{UserID: userID, Status: models.LoanStatusBorrowed})
}

func (l *Ledger) query(ctx context.Context, q LoanQuery) ([]*models.Loan, error) {
	return call(ctx, l, func(ctx context.Context) ([]*models.Loan, error) {
		return l.store.QueryLoans(ctx, q)
	})
}

func (l *Ledger) restoreCopy(ctx context.Context, bookID string, at time.Time, cause error) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if _, _, err := l.store.IncrementAvailable(rbCtx, bookID, at); err != nil {
		l.compensationFailed(ctx, bookID, cause, err)
	}
}

func (l *Ledger) takeCopyBack(ctx context.Context, bookID string, at time.Time, cause error) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if _, err := l.store.DecrementAvailable(rbCtx, bookID, at); err != nil {
		l.compensationFailed(ctx, bookID, cause, err)
	}
}

func (l *Ledger) compensationFailed(ctx context.Context, bookID string, cause, err error) {
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"book_id": bookID,
		"cause":   cause.Error(),
	})
	l.logg.Error(logCtx, "ledger.compensation_failed",
		errs.Wrap(errs.KindInvariantViolation, err, "available count left inconsistent"))
	l.metrics.IncInvariantViolation(reasonRollback)
}

func (l *Ledger) observe(ctx context.Context, op string, start time.Time, errp *error) {
	l.metrics.ObserveDuration(op, time.Since(start))
	if errp == nil || *errp == nil {
		return
	}
	kind := errs.KindOf(*errp)
	l.metrics.IncFailure(op, string(kind))
	if errs.Retryable(*errp) {
		l.logg.Error(l.logg.WithField(ctx, "operation", op), "ledger.store_unavailable", *errp)
	}
}

// call runs fn with the per-call store timeout and classifies untyped failures.
func call[T any](ctx context.Context, l *Ledger, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	out, err := fn(callCtx)
	return out, classify(err)
}

func call2[A, B any](ctx context.Context, l *Ledger, fn func(context.Context) (A, B, error)) (A, B, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	a, b, err := fn(callCtx)
	return a, b, classify(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if typed := errs.As(err); typed != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindStoreUnavailable, err, "store call timed out")
	}
	return errs.Wrap(errs.KindStoreUnavailable, err, "store call failed")
}

// notFoundAs rewrites a store NotFound with a message naming the missing entity.
func notFoundAs(err error, message string) error {
	if errs.Is(err, errs.KindNotFound) {
		return errs.Wrap(errs.KindNotFound, err, message)
	}
	return err
}

func validateLoanRequest(userID, bookID string, dueDate time.Time) error {
	details := map[string]string{}
	if userID == "" {
		details["userId"] = "is required"
	}
	if bookID == "" {
		details["bookId"] = "is required"
	}
	if dueDate.IsZero() {
		details["dueDate"] = "must be a valid ISO-8601 date"
	}
	if len(details) > 0 {
		return errs.New(errs.KindValidation, "invalid borrowing request").WithDetails(details)
	}
	return nil
}

// ParseDueDate accepts an RFC 3339 timestamp or a calendar date (midnight UTC).
func ParseDueDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errs.New(errs.KindValidation, "invalid borrowing request").
		WithDetails(map[string]string{"dueDate": "must be a valid ISO-8601 date"})
}
