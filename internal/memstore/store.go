// Package memstore is an in-process document store used in dev mode and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"library-automation/internal/errs"
	"library-automation/internal/ledger"
	"library-automation/internal/models"
)

// Operation names accepted by FailNext and BlockNext.
const (
	OpGetBook            = "GetBook"
	OpGetUser            = "GetUser"
	OpDecrementAvailable = "DecrementAvailable"
	OpIncrementAvailable = "IncrementAvailable"
	OpInsertLoan         = "InsertLoan"
	OpGetLoan            = "GetLoan"
	OpMarkReturned       = "MarkReturned"
	OpQueryLoans         = "QueryLoans"
	OpListBooks          = "ListBooks"
)

// Store keeps books, users and borrowings in maps guarded by a single mutex.
type Store struct {
	mu     sync.Mutex
	books  map[string]*models.Book
	users  map[string]*models.User
	loans  map[string]*models.Loan
	order  []string
	faults map[string]error
	blocks map[string]bool
	writes int
}

var _ ledger.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		books:  map[string]*models.Book{},
		users:  map[string]*models.User{},
		loans:  map[string]*models.Loan{},
		faults: map[string]error{},
		blocks: map[string]bool{},
	}
}

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// BlockNext makes the next call of op hang until its context is done, as a
// stalled backend would. Other calls proceed while it waits.
func (s *Store) BlockNext(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[op] = true
}

// Writes counts successful mutations since the store was created.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

// PutBook stores b as is, assigning an ID when it has none.
func (s *Store) PutBook(b *models.Book) *models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.books[cp.ID] = &cp
	out := cp
	return &out
}

// PutUser stores u as is. u.ID must be set.
func (s *Store) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[cp.ID] = &cp
}

// GetBook returns a copy of the book.
func (s *Store) GetBook(ctx context.Context, id string) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpGetBook); err != nil {
		return nil, err
	}
	b, ok := s.books[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "book not found")
	}
	cp := *b
	return &cp, nil
}

// ListBooks returns all books ordered by title.
func (s *Store) ListBooks(ctx context.Context) ([]*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpListBooks); err != nil {
		return nil, err
	}
	out := make([]*models.Book, 0, len(s.books))
	for _, b := range s.books {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetUser returns a copy of the profile.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpGetUser); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

// DecrementAvailable takes one copy if any is left.
func (s *Store) DecrementAvailable(ctx context.Context, bookID string, at time.Time) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpDecrementAvailable); err != nil {
		return nil, err
	}
	b, ok := s.books[bookID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "book not found")
	}
	if !b.DecrementAvailable() {
		return nil, errs.New(errs.KindUnavailable, "book is not available")
	}
	b.UpdatedAt = at
	s.writes++
	cp := *b
	return &cp, nil
}

// IncrementAvailable puts one copy back, clamping at quantity.
func (s *Store) IncrementAvailable(ctx context.Context, bookID string, at time.Time) (*models.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpIncrementAvailable); err != nil {
		return nil, false, err
	}
	b, ok := s.books[bookID]
	if !ok {
		return nil, false, errs.New(errs.KindNotFound, "book not found")
	}
	restored := b.IncrementAvailable()
	if restored {
		b.UpdatedAt = at
		s.writes++
	}
	cp := *b
	return &cp, restored, nil
}

// InsertLoan stores loan under a new ID.
func (s *Store) InsertLoan(ctx context.Context, loan *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpInsertLoan); err != nil {
		return err
	}
	loan.ID = uuid.NewString()
	cp := *loan
	s.loans[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	s.writes++
	return nil
}

// GetLoan returns a copy of the loan.
func (s *Store) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpGetLoan); err != nil {
		return nil, err
	}
	l, ok := s.loans[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "borrowing not found")
	}
	return cloneLoan(l), nil
}

// MarkReturned closes a borrowed loan exactly once.
func (s *Store) MarkReturned(ctx context.Context, loanID string, returnDate time.Time, fine float64) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpMarkReturned); err != nil {
		return nil, err
	}
	l, ok := s.loans[loanID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "borrowing not found")
	}
	if l.IsReturned() {
		return nil, errs.New(errs.KindAlreadyReturned, "book already returned")
	}
	rd := returnDate
	l.ReturnDate = &rd
	l.Status = models.LoanStatusReturned
	l.Fine = fine
	l.UpdatedAt = returnDate
	s.writes++
	return cloneLoan(l), nil
}

// QueryLoans returns matches in insertion order, or newest borrow first when asked.
func (s *Store) QueryLoans(ctx context.Context, q ledger.LoanQuery) ([]*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, OpQueryLoans); err != nil {
		return nil, err
	}
	out := make([]*models.Loan, 0)
	for _, id := range s.order {
		l := s.loans[id]
		if q.Matches(l) {
			out = append(out, cloneLoan(l))
		}
	}
	if q.NewestFirst {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].BorrowDate.After(out[j].BorrowDate)
		})
	}
	return out, nil
}

// check must be called with s.mu held.
func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	if s.blocks[op] {
		delete(s.blocks, op)
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return errs.Wrap(errs.KindStoreUnavailable, ctx.Err(), "store call timed out")
	}
	return s.fault(op)
}

func (s *Store) hasBorrowed(match func(*models.Loan) bool) bool {
	for _, l := range s.loans {
		if l.Status == models.LoanStatusBorrowed && match(l) {
			return true
		}
	}
	return false
}

func cloneLoan(l *models.Loan) *models.Loan {
	cp := *l
	if l.ReturnDate != nil {
		rd := *l.ReturnDate
		cp.ReturnDate = &rd
	}
	return &cp
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
