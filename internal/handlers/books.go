package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"library-automation/internal/ledger"
	"library-automation/internal/logger"
	"library-automation/internal/models"
	"library-automation/internal/responses"
	"library-automation/internal/validators"
)

// BooksHandler manages the catalog over /api/books.
type BooksHandler struct {
	catalog BookCatalog
	clock   ledger.Clock
	logg    *logger.Logger
}

// NewBooksHandler builds the /api/books handler. clock stamps created and updated books.
func NewBooksHandler(catalog BookCatalog, clock ledger.Clock, logg *logger.Logger) *BooksHandler {
	if clock == nil {
		clock = ledger.SystemClock
	}
	return &BooksHandler{catalog: catalog, clock: clock, logg: logg}
}

type createBookRequest struct {
	Title       string `json:"title" validate:"required,max=300"`
	Author      string `json:"author" validate:"required,max=200"`
	ISBN        string `json:"isbn" validate:"required,max=20"`
	Category    string `json:"category" validate:"required,max=100"`
	Description string `json:"description" validate:"max=4000"`
	Quantity    *int   `json:"quantity" validate:"required,min=0"`
}

// List handles GET /api/books; ?q= filters by title, author or ISBN.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		books []*models.Book
		err   error
	)
	if term := strings.TrimSpace(r.URL.Query().Get("q")); term != "" {
		books, err = h.catalog.SearchBooks(r.Context(), term)
	} else {
		books, err = h.catalog.ListBooks(r.Context())
	}
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, books)
}

// Get handles GET /api/books/{id}.
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.catalog.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, book)
}

// Create adds a book with every copy available.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createBookRequest
	if err := validators.DecodeJSONBody(w, r, &body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	now := h.clock.Now()
	book := &models.Book{
		Title:       strings.TrimSpace(body.Title),
		Author:      strings.TrimSpace(body.Author),
		ISBN:        strings.TrimSpace(body.ISBN),
		Category:    strings.TrimSpace(body.Category),
		Description: body.Description,
		Quantity:    *body.Quantity,
		Available:   *body.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.catalog.CreateBook(r.Context(), book); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.logg.Info(h.logg.WithField(r.Context(), "book_id", book.ID), "book.created")
	responses.WriteCreated(w, book)
}

// Update applies a partial change. A quantity change shifts available by the same amount.
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body models.BookUpdate
	if err := validators.DecodeJSONBody(w, r, &body); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	book, err := h.catalog.UpdateBook(r.Context(), chi.URLParam(r, "id"), body, h.clock.Now())
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, book)
}

// Delete removes a book with no copies out.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.catalog.DeleteBook(r.Context(), id); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.logg.Info(h.logg.WithField(r.Context(), "book_id", id), "book.deleted")
	w.WriteHeader(http.StatusNoContent)
}
