// Package entitlement предоставляет клиент внешнего сервиса тарифных пакетов.
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/earnhub/ledger-engine/internal/model"
)

// ErrRateLimited возвращается, если сервис пакетов повторно ответил 429.
var ErrRateLimited = errors.New("entitlement service rate limit exceeded")

// Client инкапсулирует HTTP-взаимодействие с сервисом пакетов.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxRetryWait time.Duration
	now          func() time.Time
}

// packageResponse описывает ответ сервиса по пакету пользователя.
type packageResponse struct {
	model.Package
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewClient создаёт HTTP-клиент для обращения к сервису пакетов по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		maxRetryWait: 10 * time.Second,
		now:          time.Now,
	}
}

// GetUserPackage запрашивает действующий пакет пользователя.
// Для 429 возвращает код ответа и паузу из Retry-After без ошибки.
func (c *Client) GetUserPackage(ctx context.Context, userID int64) (*model.Package, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("entitlement client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/packages/users/%d", base, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil && seconds > 0 {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	case http.StatusNoContent, http.StatusNotFound:
		return nil, resp.StatusCode, 0, nil
	case http.StatusOK:
	default:
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result packageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}
	if result.ExpiresAt != nil && !result.ExpiresAt.After(c.now()) {
		return nil, resp.StatusCode, 0, nil
	}

	return &result.Package, resp.StatusCode, 0, nil
}

// UserPackage возвращает пакет пользователя или nil, если пакета нет.
// После ответа 429 выжидает Retry-After и повторяет запрос один раз.
func (c *Client) UserPackage(ctx context.Context, userID int64) (*model.Package, error) {
	pkg, code, retryAfter, err := c.GetUserPackage(ctx, userID)
	if err != nil || code != http.StatusTooManyRequests {
		return pkg, err
	}
	if retryAfter > c.maxRetryWait {
		return nil, ErrRateLimited
	}

	timer := time.NewTimer(retryAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	pkg, code, _, err = c.GetUserPackage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if code == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	return pkg, nil
}
