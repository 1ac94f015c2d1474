package models

import (
	"strings"
	"time"
)

// Book is a catalog entry in the books collection.
type Book struct {
	ID          string    `json:"id" firestore:"-"`
	Title       string    `json:"title" firestore:"title"`
	Author      string    `json:"author" firestore:"author"`
	ISBN        string    `json:"isbn" firestore:"isbn"`
	Category    string    `json:"category" firestore:"category"`
	Quantity    int       `json:"quantity" firestore:"quantity"`
	Available   int       `json:"available" firestore:"available"`
	Description string    `json:"description" firestore:"description"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// IsAvailable reports whether at least one copy can be lent.
func (b *Book) IsAvailable() bool {
	return b.Available > 0
}

// Lent is the number of copies currently out.
func (b *Book) Lent() int {
	return b.Quantity - b.Available
}

// InventoryValid checks 0 <= available <= quantity.
func (b *Book) InventoryValid() bool {
	return b.Available >= 0 && b.Available <= b.Quantity
}

// DecrementAvailable takes one copy off the shelf. It returns false when none is left.
func (b *Book) DecrementAvailable() bool {
	if b.Available <= 0 {
		return false
	}
	b.Available--
	return true
}

// IncrementAvailable puts one copy back. It returns false, leaving the count
// untouched, when the book is already fully stocked.
func (b *Book) IncrementAvailable() bool {
	if b.Available >= b.Quantity {
		return false
	}
	b.Available++
	return true
}

// ResizeQuantity changes the total copy count and shifts available by the same delta.
// It returns false if more copies are lent than the new quantity allows.
func (b *Book) ResizeQuantity(quantity int) bool {
	if quantity < 0 {
		return false
	}
	available := b.Available + (quantity - b.Quantity)
	if available < 0 {
		return false
	}
	b.Quantity = quantity
	b.Available = available
	return true
}

// BookUpdate is a partial change to a catalog entry. Nil fields are left as they are.
type BookUpdate struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=300"`
	Author      *string `json:"author" validate:"omitempty,min=1,max=200"`
	ISBN        *string `json:"isbn" validate:"omitempty,max=20"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
	Quantity    *int    `json:"quantity" validate:"omitempty,min=0"`
}

// Apply writes the update onto b. It returns false when the new quantity is
// smaller than the number of copies currently lent; b is not modified then.
func (u BookUpdate) Apply(b *Book) bool {
	if u.Quantity != nil {
		resized := *b
		if !resized.ResizeQuantity(*u.Quantity) {
			return false
		}
		b.Quantity, b.Available = resized.Quantity, resized.Available
	}
	if u.Title != nil {
		b.Title = *u.Title
	}
	if u.Author != nil {
		b.Author = *u.Author
	}
	if u.ISBN != nil {
		b.ISBN = *u.ISBN
	}
	if u.Category != nil {
		b.Category = *u.Category
	}
	if u.Description != nil {
		b.Description = *u.Description
	}
	return true
}

// MatchesSearch reports whether term occurs in the title, author or ISBN, ignoring case.
func (b *Book) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), term) ||
		strings.Contains(strings.ToLower(b.Author), term) ||
		strings.Contains(strings.ToLower(b.ISBN), term)
}
