package firebase

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"library-automation/internal/errs"
	"library-automation/internal/models"
)

// GetBook reads a single catalog entry.
func (c *Client) GetBook(ctx context.Context, id string) (*models.Book, error) {
	if id == "" {
		return nil, errs.New(errs.KindValidation, "book id is required")
	}
	doc, err := c.books().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err, "reading book")
	}
	return bookFromDoc(doc)
}

// ListBooks returns the whole catalog ordered by title.
func (c *Client) ListBooks(ctx context.Context) ([]*models.Book, error) {
	iter := c.books().OrderBy("title", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	books := []*models.Book{}
	for {
		doc, err := iter.Next()
		if isDone(err) {
			break
		}
		if err != nil {
			return nil, mapError(err, "listing books")
		}
		book, err := bookFromDoc(doc)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// SearchBooks filters the catalog in memory; Firestore has no substring queries.
func (c *Client) SearchBooks(ctx context.Context, term string) ([]*models.Book, error) {
	books, err := c.ListBooks(ctx)
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

// CreateBook writes a new book, generating an ID when book.ID is empty.
func (c *Client) CreateBook(ctx context.Context, book *models.Book) error {
	var ref *firestore.DocumentRef
	if book.ID == "" {
		ref = c.books().NewDoc()
		book.ID = ref.ID
	} else {
		ref = c.books().Doc(book.ID)
	}
	if _, err := ref.Create(ctx, book); err != nil {
		return mapError(err, "creating book")
	}
	return nil
}

// UpdateBook applies a partial update inside a transaction so a quantity
// change cannot race with borrows and returns.
func (c *Client) UpdateBook(ctx context.Context, id string, update models.BookUpdate, at time.Time) (*models.Book, error) {
	ref := c.books().Doc(id)
	var out *models.Book
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		book, err := bookFromDoc(doc)
		if err != nil {
			return err
		}
		lent := book.Lent()
		if !update.Apply(book) {
			return errs.Newf(errs.KindConflict, "%d copies are lent, quantity cannot go below that", lent)
		}
		book.UpdatedAt = at
		out = book
		return tx.Set(ref, book)
	})
	if err != nil {
		return nil, mapError(err, "updating book")
	}
	return out, nil
}

// DeleteBook refuses while any copy is still borrowed.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	if _, err := c.GetBook(ctx, id); err != nil {
		return err
	}
	active, err := c.HasActiveLoans(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return errs.New(errs.KindConflict, "book has active borrowings")
	}
	if _, err := c.books().Doc(id).Delete(ctx); err != nil {
		return mapError(err, "deleting book")
	}
	return nil
}

// HasActiveLoans reports whether any borrowing of bookID is still open.
func (c *Client) HasActiveLoans(ctx context.Context, bookID string) (bool, error) {
	return c.hasBorrowed(ctx, "bookId", bookID)
}

// DecrementAvailable takes one copy in a transaction; it writes nothing when none is left.
func (c *Client) DecrementAvailable(ctx context.Context, bookID string, at time.Time) (*models.Book, error) {
	ref := c.books().Doc(bookID)
	var out *models.Book
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		book, err := bookFromDoc(doc)
		if err != nil {
			return err
		}
		if !book.DecrementAvailable() {
			return errs.New(errs.KindUnavailable, "book is not available")
		}
		book.UpdatedAt = at
		out = book
		return tx.Update(ref, availabilityUpdate(book))
	})
	if err != nil {
		return nil, mapError(err, "taking a copy")
	}
	return out, nil
}

// IncrementAvailable puts one copy back unless the book is fully stocked.
func (c *Client) IncrementAvailable(ctx context.Context, bookID string, at time.Time) (*models.Book, bool, error) {
	ref := c.books().Doc(bookID)
	var (
		out      *models.Book
		restored bool
	)
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		book, err := bookFromDoc(doc)
		if err != nil {
			return err
		}
		out = book
		restored = book.IncrementAvailable()
		if !restored {
			return nil
		}
		book.UpdatedAt = at
		return tx.Update(ref, availabilityUpdate(book))
	})
	if err != nil {
		return nil, false, mapError(err, "returning a copy")
	}
	return out, restored, nil
}

func availabilityUpdate(book *models.Book) []firestore.Update {
	return []firestore.Update{
		{Path: "available", Value: book.Available},
		{Path: "updatedAt", Value: book.UpdatedAt},
	}
}

func bookFromDoc(doc *firestore.DocumentSnapshot) (*models.Book, error) {
	var book models.Book
	if err := doc.DataTo(&book); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decoding book")
	}
	book.ID = doc.Ref.ID
	return &book, nil
}
