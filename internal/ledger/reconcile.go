package ledger

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"library-automation/internal/models"
)

// Discrepancy reasons reported by Reconcile.
const (
	ReasonCountMismatch = "count_mismatch"
	ReasonOutOfRange    = "available_out_of_range"
	ReasonOrphanLoan    = "orphan_loan"
)

// Discrepancy describes one book whose counter disagrees with its open loans.
type Discrepancy struct {
	BookID            string `json:"bookId"`
	Reason            string `json:"reason"`
	Quantity          int    `json:"quantity"`
	Available         int    `json:"available"`
	Borrowed          int    `json:"borrowed"`
	ExpectedAvailable int    `json:"expectedAvailable"`
}

// ReconcileReport is the result of comparing every book against its borrowed loans.
type ReconcileReport struct {
	CheckedAt     time.Time     `json:"checkedAt"`
	BooksChecked  int           `json:"booksChecked"`
	OpenLoans     int           `json:"openLoans"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Consistent reports whether no discrepancy was found.
func (r *ReconcileReport) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// Reconcile checks available == quantity - borrowed for every book. It only
// reports; nothing is repaired.
func (l *Ledger) Reconcile(ctx context.Context) (report *ReconcileReport, err error) {
	defer l.observe(ctx, opReconcile, time.Now(), &err)

	var (
		books []*models.Book
		open  []*models.Loan
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = call(gctx, l, func(ctx context.Context) ([]*models.Book, error) {
			return l.store.ListBooks(ctx)
		})
		return err
	})
	g.Go(func() error {
		var err error
		open, err = l.query(gctx, LoanQuery{Status: models.LoanStatusBorrowed})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	borrowed := make(map[string]int, len(books))
	for _, loan := range open {
		borrowed[loan.BookID]++
	}

	report = &ReconcileReport{
		CheckedAt:     l.clock.Now(),
		BooksChecked:  len(books),
		OpenLoans:     len(open),
		Discrepancies: []Discrepancy{},
	}
	known := make(map[string]struct{}, len(books))
	for _, book := range books {
		known[book.ID] = struct{}{}
		out := borrowed[book.ID]
		d := Discrepancy{
			BookID:            book.ID,
			Quantity:          book.Quantity,
			Available:         book.Available,
			Borrowed:          out,
			ExpectedAvailable: book.Quantity - out,
		}
		switch {
		case !book.InventoryValid():
			d.Reason = ReasonOutOfRange
		case book.Available != d.ExpectedAvailable:
			d.Reason = ReasonCountMismatch
		default:
			continue
		}
		report.Discrepancies = append(report.Discrepancies, d)
	}
	for bookID, out := range borrowed {
		if _, ok := known[bookID]; ok {
			continue
		}
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			BookID:   bookID,
			Reason:   ReasonOrphanLoan,
			Borrowed: out,
		})
	}
	sort.Slice(report.Discrepancies, func(i, j int) bool {
		return report.Discrepancies[i].BookID < report.Discrepancies[j].BookID
	})

	counts := make(map[string]int, 3)
	for _, d := range report.Discrepancies {
		counts[d.Reason]++
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
			"book_id":   d.BookID,
			"reason":    d.Reason,
			"available": d.Available,
			"expected":  d.ExpectedAvailable,
		}), "ledger.reconcile.discrepancy")
	}
	l.metrics.SetDiscrepancies(counts)
	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"books":         report.BooksChecked,
		"open_loans":    report.OpenLoans,
		"discrepancies": len(report.Discrepancies),
	}), "ledger.reconcile.done")
	return report, nil
}
