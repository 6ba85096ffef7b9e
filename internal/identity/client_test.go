package identity

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSignIn_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Fatalf("unexpected url: %s", r.URL.String())
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Fatalf("apikey header = %q, want anon-key", r.Header.Get("apikey"))
		}

		var body credentials
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Email != "ana@example.com" || body.Password != "s3cret" {
			t.Fatalf("unexpected credentials: %+v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"t","user":{"id":"6f1c","email":"Ana@Example.com"}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "anon-key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := client.SignIn(ctx, "ana@example.com", "s3cret")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if id.ID != "6f1c" || id.Email != "ana@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestClientSignUp_UserWithoutSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/signup" {
			t.Fatalf("path = %s, want /auth/v1/signup", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"a1","email":"new@example.com"}`))
	}))
	defer ts.Close()

	id, err := NewClient(ts.URL, "").SignUp(context.Background(), "new@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	if id.ID != "a1" {
		t.Fatalf("id = %q, want a1", id.ID)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "bad credentials", status: http.StatusBadRequest, body: `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, want: ErrInvalidCredentials},
		{name: "already registered", status: http.StatusUnprocessableEntity, body: `{"msg":"User already registered"}`, want: ErrUserExists},
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrUnavailable},
		{name: "server error", status: http.StatusBadGateway, want: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "5")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL, "").SignIn(context.Background(), "a@b.c", "pw")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_NotConfigured(t *testing.T) {
	var c *Client
	if _, err := c.SignIn(context.Background(), "a@b.c", "pw"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
