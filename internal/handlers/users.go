package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"library-automation/internal/errs"
	"library-automation/internal/ledger"
	"library-automation/internal/logger"
	"library-automation/internal/middleware"
	"library-automation/internal/models"
	"library-automation/internal/responses"
	"library-automation/internal/validators"
)

// UsersHandler serves /api/users.
type UsersHandler struct {
	users  UserDirectory
	ledger *ledger.Ledger
	logg   *logger.Logger
}

// NewUsersHandler builds the /api/users handler.
func NewUsersHandler(users UserDirectory, l *ledger.Ledger, logg *logger.Logger) *UsersHandler {
	return &UsersHandler{users: users, ledger: l, logg: logg}
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, users)
}

// Me returns the caller's own profile.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.UserFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), h.logg, w, errs.New(errs.KindUnauthorized, "authentication required"))
		return
	}
	responses.WriteSuccess(w, caller)
}

// Get returns a profile. Readers only see their own.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := requireSelfOrStaff(r, id); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, user)
}

// Update changes name, email, role or status. Users may rename themselves;
// staff manage reader accounts; roles, email addresses and staff accounts are admin-only.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body models.UserUpdate
	if err := validators.DecodeJSONBody(w, r, &body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	id := chi.URLParam(r, "id")
	target, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	if err := authorizeUserUpdate(r, target, body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id, body, h.ledger.Now())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.logg.Info(h.logg.WithField(r.Context(), "target_user_id", id), "user.updated")
	responses.WriteSuccess(w, user)
}

// Delete removes an account. Only admins may delete staff or admin accounts.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	if caller, ok := middleware.UserFromContext(r.Context()); !ok || (target.IsStaff() && caller.Role != models.RoleAdmin) {
		responses.WriteError(r.Context(), h.logg, w, errs.New(errs.KindForbidden, "only admins can delete staff accounts"))
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.logg.Info(h.logg.WithField(r.Context(), "target_user_id", id), "user.deleted")
	w.WriteHeader(http.StatusNoContent)
}

// Borrowings returns the user's loan history, newest first.
func (h *UsersHandler) Borrowings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := requireSelfOrStaff(r, id); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	loans, err := h.ledger.History(r.Context(), id)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loans)
}

// ActiveBorrowings returns the user's loans that are still out.
func (h *UsersHandler) ActiveBorrowings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := requireSelfOrStaff(r, id); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	loans, err := h.ledger.ListActiveByUser(r.Context(), id)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loans)
}

func authorizeUserUpdate(r *http.Request, target *models.User, update models.UserUpdate) error {
	caller, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return errs.New(errs.KindUnauthorized, "authentication required")
	}
	switch {
	case caller.Role == models.RoleAdmin:
		return nil
	case caller.ID == target.ID:
		if update.Email != nil || update.Role != nil || update.Status != nil {
			return errs.New(errs.KindForbidden, "you can only change your own name")
		}
		return nil
	case !caller.IsStaff():
		return errs.New(errs.KindForbidden, "cannot modify another user")
	case update.Role != nil:
		return errs.New(errs.KindForbidden, "only admins can change roles")
	case update.Email != nil:
		return errs.New(errs.KindForbidden, "only admins can change email addresses")
	case target.IsStaff():
		return errs.New(errs.KindForbidden, "only admins can modify staff accounts")
	}
	return nil
}
