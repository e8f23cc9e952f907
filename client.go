package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Client talks to the generateContent and streamGenerateContent endpoints.
// A Client is safe for concurrent use.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Client. apiKey must not be empty.
func New(apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := Config{APIKey: apiKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Client{cfg: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// GenerateContent sends req and returns the full answer. Non-2xx answers are
// returned as *APIError; network failures wrap ErrTransport.
func (c *Client) GenerateContent(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	resp, err := c.send(ctx, "generateContent", nil, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError("read response", err)
	}
	var out GenerateContentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, newTransportError("decode response", err)
	}
	return &out, nil
}

// StreamGenerateContent sends req when iteration starts and yields answer
// fragments in arrival order. A failure to send is yielded once as (nil, err).
// A malformed frame is yielded as an *EventDataError and decoding continues;
// a read failure ends the sequence. Stopping early closes the connection.
func (c *Client) StreamGenerateContent(ctx context.Context, req *GenerateContentRequest) iter.Seq2[*GenerateContentResponse, error] {
	return func(yield func(*GenerateContentResponse, error) bool) {
		resp, err := c.send(ctx, "streamGenerateContent", url.Values{"alt": {"sse"}}, req)
		if err != nil {
			yield(nil, err)
			return
		}
		for frag, err := range DecodeEvents(ctx, resp.Body) {
			if !yield(frag, err) {
				return
			}
		}
	}
}

func (c *Client) endpoint(model, method string, query url.Values) string {
	model = strings.TrimPrefix(model, "models/")
	u := fmt.Sprintf("%s/%s/models/%s:%s", c.cfg.BaseURL, c.cfg.APIVersion, url.PathEscape(model), method)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// send validates and posts req. On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, method string, query url.Values, req *GenerateContentRequest) (*http.Response, error) {
	if req == nil {
		return nil, ErrNoContents
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newTransportError("rate limiter", err)
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req.Model, method, query), bytes.NewReader(body))
	if err != nil {
		return nil, newTransportError("build request", err)
	}
	for key, values := range c.cfg.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		c.cfg.Logger.ErrorContext(ctx, "gemini request failed", "method", method, "model", req.Model, "error", err)
		return nil, newTransportError("send request", err)
	}
	c.cfg.Logger.DebugContext(ctx, "gemini request",
		"method", method,
		"model", req.Model,
		"status", resp.StatusCode,
		"contents", len(req.Contents),
		"duration", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return resp, nil
}

// parseAPIError reads the {"error": {code, message, status, details}} envelope.
func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{HTTPStatus: status, Code: status}
	if gjson.ValidBytes(body) {
		res := gjson.GetBytes(body, "error")
		if code := res.Get("code"); code.Exists() {
			e.Code = int(code.Int())
		}
		e.Message = res.Get("message").String()
		e.Status = res.Get("status").String()
		if d := res.Get("details"); d.Exists() {
			e.Details = json.RawMessage(d.Raw)
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
