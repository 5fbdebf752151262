// Package erp talks to the external order-management API that receives approved orders.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/lead-router/internal/config"
)

const maxErrorBody = 512

// Client calls the ERP. It never retries; callers own retry policy.
type Client struct {
	baseURL    string
	user       string
	password   string
	tokenTTL   time.Duration
	httpClient *http.Client
	cache      TokenCache
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient builds a client from config. cache may be nil, in which case every call authenticates.
func NewClient(cfg config.ERPConfig, cache TokenCache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		user:       cfg.User,
		password:   cfg.Password,
		tokenTTL:   cfg.TokenTTL(),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		cache:      cache,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

type authRequest struct {
	User     string `json:"usuario"`
	Password string `json:"password"`
}

type authResponse struct {
	Result struct {
		Token string `json:"token"`
	} `json:"result"`
}

type dispatchRequest struct {
	Token string `json:"token"`
	OrderPayload
}

type dispatchResponse struct {
	Result struct {
		ID json.RawMessage `json:"id"`
	} `json:"result"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status json.RawMessage `json:"status"`
}

// Authenticate returns a bearer token, from the cache when one is stored.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.cache != nil {
		token, ok, err := c.cache.Get(ctx)
		if err != nil {
			c.logger.Warn("erp token cache read failed", zap.Error(err))
		} else if ok {
			return token, nil
		}
	}

	status, body, err := c.do(ctx, http.MethodPost, "/auth", "", authRequest{User: c.user, Password: c.password})
	if err != nil {
		return "", authFailed("auth request failed", 0, err)
	}
	if !isSuccess(status) {
		return "", authFailed(truncate(body), status, nil)
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", authFailed("malformed auth response", status, err)
	}
	token := strings.TrimSpace(parsed.Result.Token)
	if token == "" {
		return "", authFailed("auth response carries no token", status, nil)
	}

	if c.cache != nil && c.tokenTTL > 0 {
		if err := c.cache.Set(ctx, token, c.tokenTTL); err != nil {
			c.logger.Warn("erp token cache write failed", zap.Error(err))
		}
	}
	return token, nil
}

// Dispatch sends the order and returns the id the ERP assigned to it.
func (c *Client) Dispatch(ctx context.Context, payload OrderPayload) (string, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	status, body, err := c.do(ctx, http.MethodPost, "/orders", token, dispatchRequest{Token: token, OrderPayload: payload.escaped()})
	if err != nil {
		return "", transport("dispatch request failed", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.evictToken(ctx)
	}
	if !isSuccess(status) {
		return "", rejected(truncate(body), status)
	}

	var parsed dispatchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", rejected("malformed dispatch response", status)
	}
	id, ok := parseID(parsed.Result.ID)
	if !ok {
		message := "ERP accepted the request without returning an order id"
		if parsed.Message != "" {
			message = parsed.Message
		}
		return "", rejected(message, status)
	}

	c.logger.Info("order dispatched to erp", zap.Int64("order_id", payload.OrderID), zap.String("erp_order_id", id))
	return id, nil
}

// OrderStatus asks the ERP for the current status of an order it accepted.
func (c *Client) OrderStatus(ctx context.Context, externalID string) (string, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	status, body, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(externalID)+"/status", token, nil)
	if err != nil {
		return "", transport("status request failed", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.evictToken(ctx)
	}
	if !isSuccess(status) {
		return "", rejected(truncate(body), status)
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", rejected("malformed status response", status)
	}
	value, ok := parseID(parsed.Status)
	if !ok {
		return "", rejected("status response carries no status", status)
	}
	return value, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload any) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) evictToken(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx); err != nil {
		c.logger.Warn("erp token eviction failed", zap.Error(err))
	}
}

// parseID accepts a JSON string or number and rejects null and blanks.
func parseID(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response"
	}
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
