package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с внешним сервисом аутентификации
// с GoTrue-совместимым API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// authResponse покрывает оба варианта ответа: с сессией (поле user) и без неё.
type authResponse struct {
	remoteUser
	User *remoteUser `json:"user,omitempty"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// NewClient создаёт HTTP-клиент сервиса аутентификации по указанному адресу.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SignUp регистрирует пользователя во внешнем сервисе.
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	return c.post(ctx, "/auth/v1/signup", credentials{Email: email, Password: password})
}

// SignIn получает токен по паролю и возвращает подтверждённого пользователя.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	return c.post(ctx, "/auth/v1/token?grant_type=password", credentials{Email: email, Password: password})
}

func (c *Client) post(ctx context.Context, path string, body credentials) (*model.Identity, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("identity client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, fmt.Errorf("%w: rate limited, retry after %s", ErrUnavailable, retryAfter)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, classify(resp.StatusCode, e.text())
	}

	var result authResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	u := result.remoteUser
	if result.User != nil {
		u = *result.User
	}
	if u.ID == "" {
		return nil, fmt.Errorf("decode response: user id is empty")
	}

	return &model.Identity{ID: u.ID, Email: strings.ToLower(u.Email)}, nil
}

func classify(code int, text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "already"):
		return ErrUserExists
	case code == http.StatusBadRequest || code == http.StatusUnauthorized:
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("unexpected status %d: %s", code, text)
	}
}
