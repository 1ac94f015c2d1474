package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"library-automation/internal/errs"
	"library-automation/internal/models"
)

// SearchBooks filters the catalog by title, author or ISBN.
func (s *Store) SearchBooks(ctx context.Context, term string) ([]*models.Book, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Book, 0, len(books))
	for _, b := range books {
		if b.MatchesSearch(term) {
			out = append(out, b)
		}
	}
	return out, nil
}

// CreateBook adds a catalog entry with every copy available.
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	if book.ID == "" {
		book.ID = uuid.NewString()
	} else if _, exists := s.books[book.ID]; exists {
		return errs.Newf(errs.KindConflict, "book %s already exists", book.ID)
	}
	cp := *book
	s.books[cp.ID] = &cp
	s.writes++
	return nil
}

// UpdateBook applies a partial update, refusing to shrink below the copies out.
func (s *Store) UpdateBook(ctx context.Context, id string, update models.BookUpdate, at time.Time) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	b, ok := s.books[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "book not found")
	}
	next := *b
	if !update.Apply(&next) {
		return nil, errs.Newf(errs.KindConflict, "%d copies are lent, quantity cannot go below that", b.Lent())
	}
	next.UpdatedAt = at
	*b = next
	s.writes++
	cp := next
	return &cp, nil
}

// DeleteBook refuses while any copy is still borrowed.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	if _, ok := s.books[id]; !ok {
		return errs.New(errs.KindNotFound, "book not found")
	}
	if s.hasBorrowed(func(l *models.Loan) bool { return l.BookID == id }) {
		return errs.New(errs.KindConflict, "book has active borrowings")
	}
	delete(s.books, id)
	s.writes++
	return nil
}

// ListUsers returns all profiles ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateUser stores a profile under user.ID. Emails are unique.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, exists := s.users[user.ID]; exists {
		return errs.Newf(errs.KindConflict, "user %s already exists", user.ID)
	}
	for _, u := range s.users {
		if normalizeEmail(u.Email) == normalizeEmail(user.Email) {
			return errs.New(errs.KindConflict, "email already registered")
		}
	}
	cp := *user
	s.users[cp.ID] = &cp
	s.writes++
	return nil
}

// UpdateUser applies a partial update to a profile.
func (s *Store) UpdateUser(ctx context.Context, id string, update models.UserUpdate, at time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	u, ok := s.users[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	update.Apply(u)
	u.UpdatedAt = at
	s.writes++
	cp := *u
	return &cp, nil
}

// DeleteUser refuses while the user still holds a borrowed copy.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "store call cancelled")
	}
	if _, ok := s.users[id]; !ok {
		return errs.New(errs.KindNotFound, "user not found")
	}
	if s.hasBorrowed(func(l *models.Loan) bool { return l.UserID == id }) {
		return errs.New(errs.KindConflict, "user has active borrowings")
	}
	delete(s.users, id)
	s.writes++
	return nil
}

// Ping always succeeds; it lets the store back the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
