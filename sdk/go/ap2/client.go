package ap2

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      RetryConfig
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	if c.retry.BaseDelay <= 0 {
		c.retry.BaseDelay = 200 * time.Millisecond
	}
	if c.retry.MaxDelay <= 0 {
		c.retry.MaxDelay = 5 * time.Second
	}
	return c
}

type mandateEnvelope struct {
	RequestID       string         `json:"request_id"`
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	Mandate         *Mandate       `json:"mandate"`
	ExecutionResult map[string]any `json:"execution_result"`
}

type listEnvelope struct {
	RequestID string    `json:"request_id"`
	Mandates  []Mandate `json:"mandates"`
	Count     int       `json:"count"`
}

func (c *Client) CreateIntent(ctx context.Context, req IntentRequest, idempotencyKey string) (*Mandate, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: ErrValidation, Message: err.Error()}
	}
	return c.create(ctx, "/mandates/intent", req, idempotencyKey)
}

func (c *Client) CreateCart(ctx context.Context, req CartRequest, idempotencyKey string) (*Mandate, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: ErrValidation, Message: err.Error()}
	}
	return c.create(ctx, "/mandates/cart", req, idempotencyKey)
}

func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest, idempotencyKey string) (*Mandate, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: ErrValidation, Message: err.Error()}
	}
	return c.create(ctx, "/mandates/payment", req, idempotencyKey)
}

// CreateMandate dispatches a classification result to the right create call.
func (c *Client) CreateMandate(ctx context.Context, cls Classification, idempotencyKey string) (*Mandate, error) {
	switch cls.Kind {
	case KindIntent:
		if cls.Intent == nil {
			return nil, &Error{Kind: ErrValidation, Message: "classification carries no intent payload"}
		}
		return c.CreateIntent(ctx, *cls.Intent, idempotencyKey)
	case KindCart:
		if cls.Cart == nil {
			return nil, &Error{Kind: ErrValidation, Message: "classification carries no cart payload"}
		}
		return c.CreateCart(ctx, *cls.Cart, idempotencyKey)
	case KindPayment:
		if cls.Payment == nil {
			return nil, &Error{Kind: ErrValidation, Message: "classification carries no payment payload"}
		}
		return c.CreatePayment(ctx, *cls.Payment, idempotencyKey)
	}
	return nil, &Error{Kind: ErrValidation, Message: "unknown mandate kind " + cls.Kind}
}

func (c *Client) create(ctx context.Context, path string, req any, idempotencyKey string) (*Mandate, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	body, err := c.do(ctx, http.MethodPost, path, req, headers, false)
	if err != nil {
		return nil, err
	}
	var env mandateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	if env.Mandate == nil {
		return nil, &Error{Kind: ErrTransport, Message: "response carried no mandate"}
	}
	return env.Mandate, nil
}

// ListMandates fetches the caller's mandates, most recent first. status may
// be empty for no filter.
func (c *Client) ListMandates(ctx context.Context, status string) ([]Mandate, error) {
	path := "/mandates"
	if status != "" {
		path += "?" + url.Values{"status": {status}}.Encode()
	}
	body, err := c.do(ctx, http.MethodGet, path, nil, nil, true)
	if err != nil {
		return nil, err
	}
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	return env.Mandates, nil
}

func (c *Client) GetMandate(ctx context.Context, id string) (*Mandate, error) {
	body, err := c.do(ctx, http.MethodGet, "/mandates/"+url.PathEscape(id), nil, nil, true)
	if err != nil {
		return nil, err
	}
	var env mandateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	if env.Mandate == nil {
		return nil, &Error{Kind: ErrTransport, Message: "response carried no mandate"}
	}
	return env.Mandate, nil
}

func (c *Client) ApproveMandate(ctx context.Context, id string) (*TransitionResult, error) {
	return c.transition(ctx, id, "approve")
}

func (c *Client) ExecuteMandate(ctx context.Context, id string) (*TransitionResult, error) {
	return c.transition(ctx, id, "execute")
}

func (c *Client) CancelMandate(ctx context.Context, id string) (*TransitionResult, error) {
	return c.transition(ctx, id, "cancel")
}

// transition posts a lifecycle event. Transitions are never retried: a retry
// after an ambiguous failure could replay a state change.
func (c *Client) transition(ctx context.Context, id, event string) (*TransitionResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/mandates/"+url.PathEscape(id)+"/"+event, nil, nil, false)
	if err != nil {
		return nil, err
	}
	var env mandateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	return &TransitionResult{
		Success:         env.Success,
		Message:         env.Message,
		Mandate:         env.Mandate,
		ExecutionResult: env.ExecutionResult,
	}, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	body, err := c.do(ctx, http.MethodGet, "/stats", nil, nil, true)
	if err != nil {
		return nil, err
	}
	var env struct {
		Stats Stats `json:"stats"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	return &env.Stats, nil
}

func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	body, err := c.do(ctx, http.MethodGet, "/summary", nil, nil, true)
	if err != nil {
		return nil, err
	}
	var env struct {
		Summary Summary `json:"summary"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	return &env.Summary, nil
}

// Cleanup asks the service to cancel the caller's expired mandates and
// returns how many it cancelled.
func (c *Client) Cleanup(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodPost, "/cleanup", nil, nil, false)
	if err != nil {
		return 0, err
	}
	var env struct {
		Cancelled int `json:"cancelled"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, &Error{Kind: ErrTransport, Message: "malformed response: " + err.Error()}
	}
	return env.Cancelled, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, retryable bool) (json.RawMessage, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}
	attempts := 1
	if retryable {
		attempts = c.retry.MaxAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "trustagent-go-sdk/0.1.0")
		if len(bodyBytes) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < attempts {
				sleepWithBackoff(c.retry, attempt, "")
				continue
			}
			return nil, &Error{Kind: ErrTransport, Message: err.Error()}
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if len(respBody) == 0 {
				return json.RawMessage(`{}`), nil
			}
			return respBody, nil
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			sleepWithBackoff(c.retry, attempt, resp.Header.Get("Retry-After"))
			continue
		}
		return nil, parseAPIError(resp.StatusCode, respBody)
	}
	return nil, errors.New("unreachable")
}

func shouldRetryStatus(status int) bool {
	return status == 429 || status == 502 || status == 503 || status == 504
}

func sleepWithBackoff(cfg RetryConfig, attempt int, retryAfter string) {
	if strings.TrimSpace(retryAfter) != "" {
		if sec, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil {
			d := time.Duration(sec) * time.Second
			if d > cfg.MaxDelay {
				d = cfg.MaxDelay
			}
			time.Sleep(d)
			return
		}
	}
	max := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max > float64(cfg.MaxDelay) {
		max = float64(cfg.MaxDelay)
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	time.Sleep(time.Duration(n.Int64()))
}

func parseAPIError(status int, body []byte) error {
	out := &Error{StatusCode: status}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		out.Kind = kindForCode("", status)
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}
	out.RequestID, _ = obj["request_id"].(string)
	if inner, ok := obj["error"].(map[string]any); ok {
		obj = inner
	}
	code, _ := obj["code"].(string)
	out.Kind = kindForCode(code, status)
	out.Message, _ = obj["message"].(string)
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}
