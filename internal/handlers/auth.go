package handlers

import (
	"net/http"
	"strings"

	"library-automation/internal/logger"
	"library-automation/internal/models"
	"library-automation/internal/responses"
	"library-automation/internal/validators"
)

// AuthHandler serves account registration and password sign-in.
type AuthHandler struct {
	auth Authenticator
	logg *logger.Logger
}

// NewAuthHandler builds the /api/auth handler.
func NewAuthHandler(auth Authenticator, logg *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logg: logg}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	UID          string          `json:"uid"`
	IDToken      string          `json:"idToken"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresIn    string          `json:"expiresIn"`
	Name         string          `json:"name"`
	Role         models.UserRole `json:"role"`
}

// Register creates a reader account. Staff roles are granted afterwards by an admin.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := validators.DecodeJSONBody(w, r, &body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), strings.TrimSpace(body.Name), strings.TrimSpace(body.Email), body.Password, models.RoleUser)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.logg.Info(h.logg.WithUserID(r.Context(), user.ID), "auth.registered")
	responses.WriteCreated(w, user)
}

// Login exchanges email and password for a Firebase ID token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := validators.DecodeJSONBody(w, r, &body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	session, user, err := h.auth.Login(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, loginResponse{
		UID:          user.ID,
		IDToken:      session.IDToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		Name:         user.Name,
		Role:         user.Role,
	})
}
