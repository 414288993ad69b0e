// Package auth keeps the bearer session used by the sync core.
//
// The session lives in the local store (slots "token" and "user") so the UI
// layer and the daemon share one login. The token is treated as opaque by
// the server protocol; when it happens to be a JWT its exp claim is honoured
// locally so an expired session is not sent at all.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
)

// ErrNotLoggedIn is returned when an operation needs a session and there is
// none.
var ErrNotLoggedIn = errors.New("not logged in")

// User is the profile returned by the server.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// DisplayName returns the best available label for u.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FullName != "":
		return u.FullName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Config holds configuration for a Session.
type Config struct {
	// Now is the clock used for token expiry checks.
	Now func() time.Time

	// Logger for session activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Now:    time.Now,
		Logger: log.New(os.Stderr, "[auth] ", log.LstdFlags),
	}
}

// Session is the persisted login.
type Session struct {
	store  store.Store
	client *remote.Client
	now    func() time.Time
	logger *log.Logger
}

// New creates a Session over st. client may be nil for read-only use.
func New(st store.Store, client *remote.Client, cfg *Config) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{store: st, client: client, now: now, logger: logger}
}

// Token returns the stored bearer token, or "" when logged out.
func (s *Session) Token(ctx context.Context) (string, error) {
	var token string
	if _, err := store.GetJSON(ctx, s.store, schema.SlotToken, &token); err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// User returns the stored profile, or nil when logged out.
func (s *Session) User(ctx context.Context) (*User, error) {
	var u User
	ok, err := store.GetJSON(ctx, s.store, schema.SlotUser, &u)
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// IsAuthenticated reports whether a token is stored and, if it carries an
// expiry, has not expired.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	token, err := s.Token(ctx)
	if err != nil || token == "" {
		return false
	}
	exp, ok := Expiry(token)
	return !ok || s.now().Before(exp)
}

// Expiry returns the exp claim of a JWT without verifying its signature.
// ok is false for opaque tokens and tokens without exp.
func Expiry(token string) (exp time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Login exchanges credentials for a token and persists the session.
func (s *Session) Login(ctx context.Context, username, password string) (*User, error) {
	if s.client == nil {
		return nil, fmt.Errorf("login requires a server client")
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        *User  `json:"user"`
	}
	form := url.Values{"username": {username}, "password": {password}}
	if err := s.client.PostForm(ctx, "/token", form, &reply); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	if reply.AccessToken == "" {
		return nil, fmt.Errorf("failed to log in: no access token received")
	}

	user := reply.User
	if user == nil {
		user = &User{Email: username}
	}
	if err := s.save(ctx, reply.AccessToken, user); err != nil {
		return nil, err
	}

	s.logger.Printf("Logged in as %s", user.DisplayName())
	return user, nil
}

// Signup registers a new account. It does not log in.
func (s *Session) Signup(ctx context.Context, email, password, fullName string) (*User, error) {
	if s.client == nil {
		return nil, fmt.Errorf("signup requires a server client")
	}
	body, err := json.Marshal(map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode signup: %w", err)
	}
	var u User
	if err := s.client.Do(ctx, http.MethodPost, "/signup", "", "application/json", bytes.NewReader(body), &u); err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	return &u, nil
}

// Logout tells the server (best effort) and clears the local session.
// Server errors are ignored; the local session is always cleared.
func (s *Session) Logout(ctx context.Context) error {
	token, err := s.Token(ctx)
	if err != nil {
		return err
	}
	if token != "" && s.client != nil {
		if err := s.client.Do(ctx, http.MethodPost, "/logout", token, "application/json", nil, nil); err != nil {
			s.logger.Printf("Server logout failed (ignored): %v", err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}
	s.logger.Println("Logged out")
	return nil
}

// Clear removes the local session without contacting the server.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, schema.SlotToken, schema.SlotUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Validate checks the token against the server and refreshes the stored
// profile. A rejected token clears the session and returns ErrNotLoggedIn.
// Transport failures leave the session intact so offline work continues.
func (s *Session) Validate(ctx context.Context) (*User, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	if s.client == nil {
		return s.User(ctx)
	}

	var u User
	err = s.client.Do(ctx, http.MethodGet, "/users/me", token, "", nil, &u)
	var se *remote.ServerError
	switch {
	case errors.As(err, &se):
		s.logger.Printf("Token rejected (%d), clearing session", se.Status)
		if cerr := s.Clear(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, ErrNotLoggedIn
	case err != nil:
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	if err := store.PutJSON(ctx, s.store, schema.SlotUser, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Session) save(ctx context.Context, token string, user *User) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.store.PutAll(ctx, map[schema.Slot][]byte{
		schema.SlotToken: tokenJSON,
		schema.SlotUser:  userJSON,
	}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
