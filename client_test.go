package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New("test-key", append([]ClientOption{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func simpleRequest() *GenerateContentRequest {
	return &GenerateContentRequest{Model: "gemini-2.0-flash", Contents: []*Content{UserText("hi")}}
}

func TestNew_Defaults(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := New("k", WithBaseURL("https://example.test/"))
	require.NoError(t, err)
	cfg := c.Config()
	assert.Equal(t, "https://example.test", cfg.BaseURL)
	assert.Equal(t, DefaultAPIVersion, cfg.APIVersion)
	assert.Equal(t, "https://example.test/v1beta/models/m:generateContent", c.endpoint("models/m", "generateContent", nil))
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvBaseURL, "https://env.test")
	t.Setenv(EnvAPIVersion, "v1")
	c, err := NewFromEnv(WithAPIVersion("v2"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.Config().APIKey)
	assert.Equal(t, "https://env.test", c.Config().BaseURL)
	assert.Equal(t, "v2", c.Config().APIVersion, "explicit options win over the environment")
}

func TestConfig_LogValueRedactsKey(t *testing.T) {
	v := Config{APIKey: "secret", BaseURL: "u"}.LogValue()
	assert.NotContains(t, v.String(), "secret")
	assert.Contains(t, v.String(), "[REDACTED]")
}

func TestClient_GenerateContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`, string(body))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello"}]},"finishReason":"STOP","index":0}]}`)
	}, WithHeader("X-Extra", "yes"))

	resp, err := c.GenerateContent(context.Background(), simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, FinishReasonStop, resp.FirstCandidate().FinishReason)
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
		code     int
		apiState string
	}{
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			sentinel: ErrRateLimited,
			message:  "Resource has been exhausted",
			code:     429,
			apiState: "RESOURCE_EXHAUSTED",
		},
		{
			name:     "rejected",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT","details":[{"reason":"API_KEY_INVALID"}]}}`,
			sentinel: ErrAPIRejected,
			message:  "API key not valid",
			code:     400,
			apiState: "INVALID_ARGUMENT",
		},
		{
			name:     "not json",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			sentinel: ErrAPIRejected,
			message:  "Bad Gateway",
			code:     502,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.GenerateContent(context.Background(), simpleRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.HTTPStatus)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.apiState, apiErr.Status)
			assert.True(t, IsAPIError(err))
		})
	}
}

func TestClient_ErrorDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"m","details":[{"reason":"X"}]}}`)
	})
	_, err := c.GenerateContent(context.Background(), simpleRequest())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.JSONEq(t, `[{"reason":"X"}]`, string(apiErr.Details))
}

func TestClient_RequestValidation(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("request must not be sent")
	})
	_, err := c.GenerateContent(context.Background(), &GenerateContentRequest{Contents: []*Content{UserText("x")}})
	require.ErrorIs(t, err, ErrMissingModel)
	_, err = c.GenerateContent(context.Background(), &GenerateContentRequest{Model: "m"})
	require.ErrorIs(t, err, ErrNoContents)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	c, err := New("k", WithBaseURL(url))
	require.NoError(t, err)
	_, err = c.GenerateContent(context.Background(), simpleRequest())
	require.ErrorIs(t, err, ErrTransport)
}

func TestClient_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":`)
	})
	_, err := c.GenerateContent(context.Background(), simpleRequest())
	require.ErrorIs(t, err, ErrTransport)
}

func TestClient_RequestTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, WithRequestTimeout(20*time.Millisecond))
	_, err := c.GenerateContent(context.Background(), simpleRequest())
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_RateLimit(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{}`)
	}, WithRateLimit(1, 1))

	_, err := c.GenerateContent(context.Background(), simpleRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.GenerateContent(ctx, simpleRequest())
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_SendsDeclarations(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newEchoTool(t))
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tools []ToolDeclaration `json:"tools"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body.Tools, 1) {
			assert.Equal(t, "echo", body.Tools[0].FunctionDeclarations[0].Name)
		}
		_, _ = io.WriteString(w, `{}`)
	})
	req := simpleRequest()
	req.Tools = reg
	_, err := c.GenerateContent(context.Background(), req)
	require.NoError(t, err)
}
