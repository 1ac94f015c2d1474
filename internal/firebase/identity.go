package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"library-automation/internal/errs"
)

const identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

// IdentityToolkit signs users in with email and password through the Firebase Auth REST API.
// The Admin SDK cannot verify passwords.
type IdentityToolkit struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// SignInResult carries the tokens returned by accounts:signInWithPassword.
type SignInResult struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// NewIdentityToolkit builds a sign-in client. A nil httpClient means http.DefaultClient.
func NewIdentityToolkit(apiKey string, httpClient *http.Client) *IdentityToolkit {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IdentityToolkit{apiKey: apiKey, baseURL: identityToolkitURL, http: httpClient}
}

// WithBaseURL points the client at another endpoint, such as the Auth emulator.
func (t *IdentityToolkit) WithBaseURL(baseURL string) *IdentityToolkit {
	t.baseURL = baseURL
	return t
}

// SignIn verifies email and password and returns the issued tokens.
func (t *IdentityToolkit) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	if t.apiKey == "" {
		return nil, errs.New(errs.KindInternal, "FIREBASE_WEB_API_KEY is not configured")
	}

	body, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "encoding sign-in request")
	}

	endpoint := fmt.Sprintf("%s/accounts:signInWithPassword?key=%s", t.baseURL, url.QueryEscape(t.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "building sign-in request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "contacting firebase auth")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "reading sign-in response")
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(payload, &errorResp); err == nil {
			switch errorResp.Error.Message {
			case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL":
				return nil, errs.New(errs.KindUnauthorized, "invalid email or password")
			case "USER_DISABLED":
				return nil, errs.New(errs.KindForbidden, "account is disabled")
			}
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errs.Newf(errs.KindStoreUnavailable, "firebase auth returned status %d", resp.StatusCode)
		}
		return nil, errs.Newf(errs.KindUnauthorized, "sign-in rejected with status %d", resp.StatusCode)
	}

	var authResp struct {
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := json.Unmarshal(payload, &authResp); err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "decoding sign-in response")
	}

	return &SignInResult{
		UID:          authResp.LocalID,
		Email:        authResp.Email,
		IDToken:      authResp.IDToken,
		RefreshToken: authResp.RefreshToken,
		ExpiresIn:    authResp.ExpiresIn,
	}, nil
}
