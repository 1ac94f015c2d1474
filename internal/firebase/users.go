package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"

	"library-automation/internal/errs"
	"library-automation/internal/models"
)

const rollbackTimeout = 10 * time.Second

// GetUser reads a profile. The document key is the Firebase Auth UID.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, errs.New(errs.KindValidation, "user id is required")
	}
	doc, err := c.users().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err, "reading user")
	}
	return userFromDoc(doc)
}

// ListUsers returns every profile ordered by email.
func (c *Client) ListUsers(ctx context.Context) ([]*models.User, error) {
	iter := c.users().OrderBy("email", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	users := []*models.User{}
	for {
		doc, err := iter.Next()
		if isDone(err) {
			break
		}
		if err != nil {
			return nil, mapError(err, "listing users")
		}
		user, err := userFromDoc(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// CreateUser writes the profile under user.ID, failing if it already exists.
func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errs.New(errs.KindValidation, "user id is required")
	}
	if _, err := c.users().Doc(user.ID).Create(ctx, user); err != nil {
		return mapError(err, "creating user")
	}
	return nil
}

// UpdateUser applies update in a transaction and mirrors email and status
// changes into Firebase Auth.
func (c *Client) UpdateUser(ctx context.Context, id string, update models.UserUpdate, at time.Time) (*models.User, error) {
	ref := c.users().Doc(id)
	var out *models.User
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		user, err := userFromDoc(doc)
		if err != nil {
			return err
		}
		update.Apply(user)
		user.UpdatedAt = at
		out = user
		return tx.Set(ref, user)
	})
	if err != nil {
		return nil, mapError(err, "updating user")
	}
	if update.Status != nil || update.Email != nil {
		params := &auth.UserToUpdate{}
		if update.Status != nil {
			params = params.Disabled(*update.Status != models.UserStatusActive)
		}
		if update.Email != nil {
			params = params.Email(out.Email)
		}
		if _, err := c.Auth.UpdateUser(ctx, id, params); err != nil && !auth.IsUserNotFound(err) {
			return nil, mapError(err, "updating auth account")
		}
	}
	return out, nil
}

// DeleteUser removes the profile and the auth account. Users with open
// borrowings cannot be deleted.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if _, err := c.GetUser(ctx, id); err != nil {
		return err
	}
	active, err := c.hasBorrowed(ctx, "userId", id)
	if err != nil {
		return err
	}
	if active {
		return errs.New(errs.KindConflict, "user has active borrowings")
	}
	if _, err := c.users().Doc(id).Delete(ctx); err != nil {
		return mapError(err, "deleting user")
	}
	if err := c.Auth.DeleteUser(ctx, id); err != nil && !auth.IsUserNotFound(err) {
		return mapError(err, "deleting auth account")
	}
	return nil
}

// Register creates the auth account and its profile. If the profile cannot be
// written the auth account is removed again.
func (c *Client) Register(ctx context.Context, name, email, password string, role models.UserRole) (*models.User, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(name)

	record, err := c.Auth.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, errs.New(errs.KindConflict, "email already registered")
		}
		return nil, mapError(err, "creating auth account")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        record.UID,
		Name:      name,
		Email:     strings.ToLower(email),
		Role:      role,
		Status:    models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.CreateUser(ctx, user); err != nil {
		return nil, rollbackAccount(ctx, c.Auth, record.UID, err)
	}
	return user, nil
}

type accountDeleter interface {
	DeleteUser(ctx context.Context, uid string) error
}

// rollbackAccount removes an auth account whose profile could not be written.
// If that fails too the orphaned UID is named in the returned error.
func rollbackAccount(ctx context.Context, accounts accountDeleter, uid string, cause error) error {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	err := accounts.DeleteUser(rbCtx, uid)
	if err == nil || auth.IsUserNotFound(err) {
		return cause
	}
	return errs.Wrap(errs.KindInternal, errors.Join(cause, err),
		fmt.Sprintf("profile write failed and auth account %s could not be removed", uid))
}

// Login verifies the password and returns the ID token with the profile.
func (c *Client) Login(ctx context.Context, email, password string) (*SignInResult, *models.User, error) {
	result, err := c.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	user, err := c.GetUser(ctx, result.UID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive() {
		return nil, nil, errs.New(errs.KindForbidden, "account is not active")
	}
	return result, user, nil
}

func userFromDoc(doc *firestore.DocumentSnapshot) (*models.User, error) {
	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decoding user")
	}
	user.ID = doc.Ref.ID
	return &user, nil
}
