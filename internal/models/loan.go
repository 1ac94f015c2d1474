package models

import "time"

// LoanStatus is the lifecycle state of a borrowing record.
type LoanStatus string

const (
	LoanStatusBorrowed LoanStatus = "borrowed" // initial
	LoanStatusReturned LoanStatus = "returned" // terminal
)

// FineRatePerDay is charged for every full day a loan is returned past its due date.
const FineRatePerDay = 1.0

const day = 24 * time.Hour

// Loan is a borrowing record stored in the borrowings collection.
type Loan struct {
	ID         string     `json:"id" firestore:"-"`
	UserID     string     `json:"userId" firestore:"userId"`
	BookID     string     `json:"bookId" firestore:"bookId"`
	BorrowDate time.Time  `json:"borrowDate" firestore:"borrowDate"`
	DueDate    time.Time  `json:"dueDate" firestore:"dueDate"`
	ReturnDate *time.Time `json:"returnDate" firestore:"returnDate"`
	Status     LoanStatus `json:"status" firestore:"status"`
	Fine       float64    `json:"fine" firestore:"fine"`
	CreatedAt  time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// IsReturned reports whether the loan reached its terminal state.
func (l *Loan) IsReturned() bool {
	return l.Status == LoanStatusReturned
}

// IsOverdue reports whether the loan is still borrowed and its due date lies strictly before now.
func IsOverdue(l *Loan, now time.Time) bool {
	return l != nil && l.Status == LoanStatusBorrowed && l.DueDate.Before(now)
}

// DaysLate counts whole days elapsed between dueDate and returnDate. Partial days are not counted.
func DaysLate(dueDate, returnDate time.Time) int {
	late := returnDate.Sub(dueDate)
	if late <= 0 {
		return 0
	}
	return int(late / day)
}

// CalculateFine returns the fine owed for returning at returnDate.
func CalculateFine(dueDate, returnDate time.Time) float64 {
	return float64(DaysLate(dueDate, returnDate)) * FineRatePerDay
}

// DaysUntilDue is negative once the due date has passed.
func (l *Loan) DaysUntilDue(now time.Time) int {
	if l.Status != LoanStatusBorrowed {
		return 0
	}
	return int(l.DueDate.Sub(now) / day)
}
