// Package seed holds the sample catalog used by the seeding script and by
// the in-memory development store.
package seed

import (
	"time"

	"library-automation/internal/models"
)

// Books returns a fresh copy of the sample catalog stamped with now.
func Books(now time.Time) []*models.Book {
	books := []*models.Book{
		{
			ISBN:        "978-83-8032-464-8",
			Title:       "The Last Wish",
			Author:      "Andrzej Sapkowski",
			Category:    "Fantasy",
			Description: "Short stories about Geralt of Rivia, a monster hunter. The first book of the Witcher saga.",
			Quantity:    3,
		},
		{
			ISBN:        "978-83-240-1455-5",
			Title:       "Crime and Punishment",
			Author:      "Fyodor Dostoevsky",
			Category:    "Classics",
			Description: "A psychological novel about Rodion Raskolnikov and the consequences of the murder he commits.",
			Quantity:    2,
		},
		{
			ISBN:        "978-83-7686-320-4",
			Title:       "Sapiens: A Brief History of Humankind",
			Author:      "Yuval Noah Harari",
			Category:    "Popular Science",
			Description: "The history of humankind from prehistoric times to the present day.",
			Quantity:    4,
		},
		{
			ISBN:        "978-83-7885-585-8",
			Title:       "Nineteen Eighty-Four",
			Author:      "George Orwell",
			Category:    "Science Fiction",
			Description: "A dystopian portrait of a totalitarian society under constant surveillance.",
			Quantity:    2,
		},
		{
			ISBN:        "978-83-8100-234-1",
			Title:       "Atomic Habits",
			Author:      "James Clear",
			Category:    "Self-help",
			Description: "A practical guide to building good habits and breaking bad ones.",
			Quantity:    3,
		},
		{
			ISBN:        "978-83-240-4532-0",
			Title:       "Harry Potter and the Philosopher's Stone",
			Author:      "J.K. Rowling",
			Category:    "Fantasy",
			Description: "The first year of a young wizard at Hogwarts School of Witchcraft and Wizardry.",
			Quantity:    5,
		},
		{
			ISBN:        "978-83-7686-811-7",
			Title:       "The Da Vinci Code",
			Author:      "Dan Brown",
			Category:    "Thriller",
			Description: "Robert Langdon follows a trail of symbols after a murder in the Louvre.",
			Quantity:    2,
		},
		{
			ISBN:        "978-83-7506-651-3",
			Title:       "The Fellowship of the Ring",
			Author:      "J.R.R. Tolkien",
			Category:    "Fantasy",
			Description: "The first part of the quest to destroy the One Ring.",
			Quantity:    3,
		},
		{
			ISBN:        "978-83-240-5896-2",
			Title:       "The Master and Margarita",
			Author:      "Mikhail Bulgakov",
			Category:    "Classics",
			Description: "A satire set in 1930s Moscow interwoven with the story of Pontius Pilate.",
			Quantity:    2,
		},
		{
			ISBN:        "978-83-8100-567-0",
			Title:       "Thinking, Fast and Slow",
			Author:      "Daniel Kahneman",
			Category:    "Psychology",
			Description: "Two systems of thought, the fast intuitive one and the slow deliberate one.",
			Quantity:    2,
		},
	}
	for _, b := range books {
		b.Available = b.Quantity
		b.CreatedAt = now
		b.UpdatedAt = now
	}
	return books
}
