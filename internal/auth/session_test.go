package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
)

var quiet = log.New(io.Discard, "", 0)

func newSession(t *testing.T, h http.HandlerFunc, now time.Time) (*Session, store.Store) {
	t.Helper()
	st := store.NewMemory()
	var client *remote.Client
	if h != nil {
		srv := httptest.NewServer(h)
		t.Cleanup(srv.Close)
		client = remote.New(&remote.Config{BaseURL: srv.URL, Logger: quiet})
	}
	return New(st, client, &Config{Now: func() time.Time { return now }, Logger: quiet}), st
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}
	return s
}

func TestLogin(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, now.Add(time.Hour))

	sess, st := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("path = %s, want /token", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Incorrect username or password"}`)
			return
		}
		io.WriteString(w, `{"access_token":"`+token+`","token_type":"bearer"}`)
	}, now)
	ctx := context.Background()

	if _, err := sess.Login(ctx, "admin@example.com", "wrong"); err == nil {
		t.Fatal("Login() with a bad password succeeded")
	}
	if sess.IsAuthenticated(ctx) {
		t.Fatal("failed login left a session behind")
	}

	user, err := sess.Login(ctx, " admin@example.com ", "secret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if user.Email != "admin@example.com" {
		t.Errorf("fallback user email = %q", user.Email)
	}
	if !sess.IsAuthenticated(ctx) {
		t.Error("IsAuthenticated() = false after login")
	}

	raw, ok, _ := st.Get(ctx, schema.SlotToken)
	if !ok || string(raw) != `"`+token+`"` {
		t.Errorf("token slot = %s", raw)
	}
}

func TestSignup(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sess, st := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/signup" {
			t.Errorf("request = %s %s, want POST /signup", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad signup body: %v", err)
		}
		if body["email"] == "taken@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"detail":"Email already registered"}`)
			return
		}
		if body["password"] != "secret" || body["full_name"] != "Jane Okello" {
			t.Errorf("signup body = %v", body)
		}
		io.WriteString(w, `{"id":7,"email":"`+body["email"]+`","full_name":"`+body["full_name"]+`"}`)
	}, now)
	ctx := context.Background()

	user, err := sess.Signup(ctx, "jane@example.com", "secret", "Jane Okello")
	if err != nil {
		t.Fatalf("Signup() failed: %v", err)
	}
	if user.ID != 7 || user.DisplayName() != "Jane Okello" {
		t.Errorf("user = %+v", user)
	}
	if sess.IsAuthenticated(ctx) {
		t.Error("Signup() started a session")
	}
	if _, ok, _ := st.Get(ctx, schema.SlotUser); ok {
		t.Error("Signup() stored a user profile")
	}

	_, err = sess.Signup(ctx, "taken@example.com", "secret", "Jane Okello")
	var se *remote.ServerError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Errorf("Signup(taken) error = %v, want a 400 ServerError", err)
	}

	offline, _ := newSession(t, nil, now)
	if _, err := offline.Signup(ctx, "jane@example.com", "secret", ""); err == nil {
		t.Error("Signup() without a client succeeded")
	}
}

func TestIsAuthenticated_Expiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"no token", "", false},
		{"opaque token", "abc123", true},
		{"valid jwt", signedToken(t, now.Add(time.Minute)), true},
		{"expired jwt", signedToken(t, now.Add(-time.Minute)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, st := newSession(t, nil, now)
			ctx := context.Background()
			if tt.token != "" {
				if err := store.PutJSON(ctx, st, schema.SlotToken, tt.token); err != nil {
					t.Fatal(err)
				}
			}
			if got := sess.IsAuthenticated(ctx); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogout_IgnoresServerFailure(t *testing.T) {
	sess, st := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			t.Errorf("logout sent without bearer token")
		}
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Now())
	ctx := context.Background()

	_ = store.PutJSON(ctx, st, schema.SlotToken, "abc")
	_ = store.PutJSON(ctx, st, schema.SlotUser, User{Email: "a@b.c"})

	if err := sess.Logout(ctx); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if _, ok, _ := st.Get(ctx, schema.SlotToken); ok {
		t.Error("token slot survived logout")
	}
	if u, _ := sess.User(ctx); u != nil {
		t.Errorf("user survived logout: %+v", u)
	}
}

func TestValidate(t *testing.T) {
	status := http.StatusOK
	sess, st := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			io.WriteString(w, `{"id":7,"email":"a@b.c","full_name":"Ann Buyer"}`)
		}
	}, time.Now())
	ctx := context.Background()

	if _, err := sess.Validate(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Validate() without token = %v, want ErrNotLoggedIn", err)
	}

	_ = store.PutJSON(ctx, st, schema.SlotToken, "abc")
	u, err := sess.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if u.DisplayName() != "Ann Buyer" {
		t.Errorf("DisplayName() = %q", u.DisplayName())
	}
	if stored, _ := sess.User(ctx); stored == nil || stored.ID != 7 {
		t.Errorf("stored user = %+v", stored)
	}

	status = http.StatusUnauthorized
	if _, err := sess.Validate(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Validate() with rejected token = %v, want ErrNotLoggedIn", err)
	}
	if tok, _ := sess.Token(ctx); tok != "" {
		t.Error("rejected token not cleared")
	}
}

func TestValidate_OfflineKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	st := store.NewMemory()
	sess := New(st, remote.New(&remote.Config{BaseURL: addr, Logger: quiet}), &Config{Logger: quiet})
	ctx := context.Background()
	_ = store.PutJSON(ctx, st, schema.SlotToken, "abc")

	if _, err := sess.Validate(ctx); err == nil {
		t.Fatal("Validate() against a dead server succeeded")
	}
	if tok, _ := sess.Token(ctx); tok != "abc" {
		t.Errorf("token = %q, want session kept while offline", tok)
	}
}
