package ledger

import (
	"context"
	"time"

	"library-automation/internal/models"
)

// Store is the document store the ledger reads and writes through.
//
// Implementations report a missing document as errs.KindNotFound and transient
// I/O failures as errs.KindStoreUnavailable. The availability and return
// mutations must be atomic per document.
type Store interface {
	GetBook(ctx context.Context, id string) (*models.Book, error)
	ListBooks(ctx context.Context) ([]*models.Book, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// DecrementAvailable takes one copy if available > 0 and fails with
	// errs.KindUnavailable otherwise, without writing.
	DecrementAvailable(ctx context.Context, bookID string, at time.Time) (*models.Book, error)
	// IncrementAvailable puts one copy back unless available already equals
	// quantity, in which case nothing is written and restored is false.
	IncrementAvailable(ctx context.Context, bookID string, at time.Time) (book *models.Book, restored bool, err error)

	// InsertLoan persists a new loan and assigns loan.ID.
	InsertLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id string) (*models.Loan, error)
	// MarkReturned moves a borrowed loan to returned. A loan that is already
	// returned fails with errs.KindAlreadyReturned and is left untouched.
	MarkReturned(ctx context.Context, loanID string, returnDate time.Time, fine float64) (*models.Loan, error)
	QueryLoans(ctx context.Context, q LoanQuery) ([]*models.Loan, error)
}

// LoanQuery filters the borrowings collection. Zero fields do not filter.
type LoanQuery struct {
	UserID string
	BookID string
	Status models.LoanStatus
	// DueBefore keeps loans whose due date is strictly before this instant.
	DueBefore time.Time
	// NewestFirst orders by borrowDate descending.
	NewestFirst bool
}

// Matches applies the query to a single loan. In-process stores use it as their filter.
func (q LoanQuery) Matches(l *models.Loan) bool {
	if q.UserID != "" && l.UserID != q.UserID {
		return false
	}
	if q.BookID != "" && l.BookID != q.BookID {
		return false
	}
	if q.Status != "" && l.Status != q.Status {
		return false
	}
	if !q.DueBefore.IsZero() && !l.DueDate.Before(q.DueBefore) {
		return false
	}
	return true
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads wall time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
