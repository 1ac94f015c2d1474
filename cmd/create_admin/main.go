package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"library-automation/internal/config"
	"library-automation/internal/firebase"
	"library-automation/internal/logger"
	"library-automation/internal/models"
)

func main() {
	email := flag.String("email", os.Getenv("LIBRARY_ADMIN_EMAIL"), "admin account email")
	password := flag.String("password", os.Getenv("LIBRARY_ADMIN_PASSWORD"), "admin account password")
	name := flag.String("name", "Admin", "display name")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "library-create-admin", Format: "console"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	if *email == "" || len(*password) < 6 {
		logg.Warn(ctx, "usage: create_admin -email admin@example.com -password <at least 6 characters>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	client, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		logg.Error(ctx, "failed to initialize firebase", err)
		os.Exit(1)
	}
	defer client.Close()

	user, err := client.Register(ctx, *name, *email, *password, models.RoleAdmin)
	if err != nil {
		logg.Error(logg.WithField(ctx, "email", *email), "failed to create admin", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"uid":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
	}), "admin account created")
}
