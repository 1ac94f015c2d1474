package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"library-automation/internal/errs"
	"library-automation/internal/ledger"
	"library-automation/internal/logger"
	"library-automation/internal/middleware"
	"library-automation/internal/responses"
	"library-automation/internal/validators"
)

// BorrowingsHandler exposes the loan ledger over /api/borrowings.
type BorrowingsHandler struct {
	ledger *ledger.Ledger
	logg   *logger.Logger
}

// NewBorrowingsHandler builds the /api/borrowings handler.
func NewBorrowingsHandler(l *ledger.Ledger, logg *logger.Logger) *BorrowingsHandler {
	return &BorrowingsHandler{ledger: l, logg: logg}
}

type createBorrowingRequest struct {
	UserID  string `json:"userId" validate:"required"`
	BookID  string `json:"bookId" validate:"required"`
	DueDate string `json:"dueDate" validate:"required"`
}

// List handles GET /api/borrowings.
func (h *BorrowingsHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := h.ledger.ListAll(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loans)
}

// ListByUser handles GET /api/borrowings/user/{userId}. Readers only see their own loans.
func (h *BorrowingsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := requireSelfOrStaff(r, userID); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	loans, err := h.ledger.ListByUser(r.Context(), userID)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loans)
}

// ListOverdue handles GET /api/borrowings/overdue.
func (h *BorrowingsHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.ledger.ListOverdue(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loans)
}

// Create handles POST /api/borrowings. Readers may only borrow for themselves.
func (h *BorrowingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createBorrowingRequest
	if err := validators.DecodeJSONBody(w, r, &body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	if err := requireSelfOrStaff(r, body.UserID); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	dueDate, err := ledger.ParseDueDate(body.DueDate)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	loan, err := h.ledger.CreateLoan(r.Context(), body.UserID, body.BookID, dueDate)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteCreated(w, loan)
}

// Return handles PUT /api/borrowings/{id}/return. Readers may only return their own loans.
func (h *BorrowingsHandler) Return(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if caller, ok := middleware.UserFromContext(r.Context()); !ok || !caller.IsStaff() {
		current, err := h.ledger.GetLoan(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), h.logg, w, err)
			return
		}
		if err := requireSelfOrStaff(r, current.UserID); err != nil {
			responses.WriteError(r.Context(), h.logg, w, err)
			return
		}
	}

	loan, err := h.ledger.ReturnLoan(r.Context(), id)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loan)
}

// Reconcile handles GET /api/borrowings/reconcile.
func (h *BorrowingsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, report)
}

func requireSelfOrStaff(r *http.Request, userID string) error {
	caller, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return errs.New(errs.KindUnauthorized, "authentication required")
	}
	if caller.IsStaff() || caller.ID == userID {
		return nil
	}
	return errs.New(errs.KindForbidden, "cannot access another user's data")
}
