package firebase

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"library-automation/internal/config"
)

const (
	BooksCollection      = "books"
	BorrowingsCollection = "borrowings"
	UsersCollection      = "users"
)

// Client holds the Firebase Admin clients and implements the document stores.
type Client struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client

	identity *IdentityToolkit
}

// InitFirebase builds the Admin SDK clients from a credentials file or inline JSON.
func InitFirebase(ctx context.Context, cfg config.FirebaseConfig) (*Client, error) {
	var opt option.ClientOption
	switch {
	case cfg.CredentialsPath != "":
		if _, err := os.Stat(cfg.CredentialsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("credentials file does not exist: %s", cfg.CredentialsPath)
		}
		opt = option.WithCredentialsFile(cfg.CredentialsPath)
	case cfg.CredentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	default:
		return nil, fmt.Errorf("neither FIREBASE_CREDENTIALS_PATH nor FIREBASE_CREDENTIALS_JSON is set")
	}

	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, appCfg, opt)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase auth: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firestore: %w", err)
	}

	return &Client{
		App:       app,
		Auth:      authClient,
		Firestore: firestoreClient,
		identity:  NewIdentityToolkit(cfg.WebAPIKey, &http.Client{Timeout: 10 * time.Second}),
	}, nil
}

// Close releases the Firestore connection.
func (c *Client) Close() error {
	if c.Firestore != nil {
		return c.Firestore.Close()
	}
	return nil
}

// Ping reads a single book document to prove Firestore is reachable.
func (c *Client) Ping(ctx context.Context) error {
	iter := c.Firestore.Collection(BooksCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !isDone(err) {
		return mapError(err, "firestore ping")
	}
	return nil
}

func (c *Client) books() *firestore.CollectionRef {
	return c.Firestore.Collection(BooksCollection)
}

func (c *Client) borrowings() *firestore.CollectionRef {
	return c.Firestore.Collection(BorrowingsCollection)
}

func (c *Client) users() *firestore.CollectionRef {
	return c.Firestore.Collection(UsersCollection)
}
