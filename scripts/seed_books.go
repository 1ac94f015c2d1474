package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"library-automation/internal/config"
	"library-automation/internal/firebase"
	"library-automation/internal/logger"
	"library-automation/internal/seed"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "library-seed", Format: "console"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	fbClient, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		logg.Error(ctx, "failed to initialize firebase", err)
		os.Exit(1)
	}
	defer fbClient.Close()

	books := seed.Books(time.Now().UTC())
	added := 0
	for _, book := range books {
		bookCtx := logg.WithFields(ctx, map[string]any{"title": book.Title, "author": book.Author})
		if err := fbClient.CreateBook(ctx, book); err != nil {
			logg.Error(bookCtx, "failed to add book", err)
			continue
		}
		logg.Info(logg.WithField(bookCtx, "bookId", book.ID), "book added")
		added++
	}

	logg.Info(logg.WithFields(ctx, map[string]any{"added": added, "total": len(books)}), "seeding finished")
	if added != len(books) {
		os.Exit(1)
	}
}
