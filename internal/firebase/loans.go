package firebase

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	"library-automation/internal/errs"
	"library-automation/internal/ledger"
	"library-automation/internal/models"
)

var _ ledger.Store = (*Client)(nil)

// GetLoan reads one borrowing document.
func (c *Client) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	if id == "" {
		return nil, errs.New(errs.KindValidation, "borrowing id is required")
	}
	doc, err := c.borrowings().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err, "reading borrowing")
	}
	return loanFromDoc(doc)
}

// InsertLoan writes a new borrowing document and sets loan.ID.
func (c *Client) InsertLoan(ctx context.Context, loan *models.Loan) error {
	ref := c.borrowings().NewDoc()
	if _, err := ref.Create(ctx, loan); err != nil {
		return mapError(err, "creating borrowing")
	}
	loan.ID = ref.ID
	return nil
}

// MarkReturned moves a borrowing to returned inside a transaction, so two
// concurrent returns cannot both succeed.
func (c *Client) MarkReturned(ctx context.Context, loanID string, returnDate time.Time, fine float64) (*models.Loan, error) {
	ref := c.borrowings().Doc(loanID)
	var out *models.Loan
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		loan, err := loanFromDoc(doc)
		if err != nil {
			return err
		}
		if loan.IsReturned() {
			return errs.New(errs.KindAlreadyReturned, "book already returned")
		}
		rd := returnDate
		loan.ReturnDate = &rd
		loan.Status = models.LoanStatusReturned
		loan.Fine = fine
		loan.UpdatedAt = returnDate
		out = loan
		return tx.Update(ref, []firestore.Update{
			{Path: "returnDate", Value: returnDate},
			{Path: "status", Value: string(models.LoanStatusReturned)},
			{Path: "fine", Value: fine},
			{Path: "updatedAt", Value: returnDate},
		})
	})
	if err != nil {
		return nil, mapError(err, "returning borrowing")
	}
	return out, nil
}

// QueryLoans translates the filter into a Firestore query. Ordering is done
// server side only when no inequality filter is present.
func (c *Client) QueryLoans(ctx context.Context, q ledger.LoanQuery) ([]*models.Loan, error) {
	query := c.borrowings().Query
	if q.UserID != "" {
		query = query.Where("userId", "==", q.UserID)
	}
	if q.BookID != "" {
		query = query.Where("bookId", "==", q.BookID)
	}
	if q.Status != "" {
		query = query.Where("status", "==", string(q.Status))
	}
	if !q.DueBefore.IsZero() {
		query = query.Where("dueDate", "<", q.DueBefore)
	}
	serverOrdered := q.NewestFirst && q.DueBefore.IsZero()
	if serverOrdered {
		query = query.OrderBy("borrowDate", firestore.Desc)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	loans := []*models.Loan{}
	for {
		doc, err := iter.Next()
		if isDone(err) {
			break
		}
		if err != nil {
			return nil, mapError(err, "querying borrowings")
		}
		loan, err := loanFromDoc(doc)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}

	if q.NewestFirst && !serverOrdered {
		sort.SliceStable(loans, func(i, j int) bool {
			return loans[i].BorrowDate.After(loans[j].BorrowDate)
		})
	}
	return loans, nil
}

func (c *Client) hasBorrowed(ctx context.Context, field, value string) (bool, error) {
	iter := c.borrowings().
		Where(field, "==", value).
		Where("status", "==", string(models.LoanStatusBorrowed)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if isDone(err) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err, "checking borrowings")
	}
	return true, nil
}

func loanFromDoc(doc *firestore.DocumentSnapshot) (*models.Loan, error) {
	var loan models.Loan
	if err := doc.DataTo(&loan); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decoding borrowing")
	}
	loan.ID = doc.Ref.ID
	return &loan, nil
}
