package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) (*ipv4Server, *int32) {
	t.Helper()
	var idx int32
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		w.WriteHeader(st)
		if st >= 200 && st < 300 {
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	})), &idx
}

var okBody = GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}}

func hi() GenerateRequest {
	return GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1}
}

func TestGenerateRetriesOn429(t *testing.T) {
	srv, calls := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}, {}}, okBody)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, hi())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestGenerateSingleAttemptByDefault(t *testing.T) {
	srv, calls := testServerSequence(t, []int{429, 200}, nil, okBody)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 0, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), hi())
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle), "got %v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestRetryAfterHonored(t *testing.T) {
	srv, _ := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}, {}}, okBody)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 5*time.Second, 3, 0, 0, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Generate(ctx, hi())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 3, 10*time.Millisecond, 50*time.Millisecond, srv.URL)
	_, err := c.Generate(context.Background(), hi())
	var bre *BadRequestError
	require.True(t, errors.As(err, &bre))
	assert.Contains(t, err.Error(), "req_test_123")
	assert.Contains(t, err.Error(), "code=bad_request")
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		status int
		code   string
		msg    string
		check  func(error) bool
	}{
		{401, "", "nope", func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{404, "model_not_found", "", func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{402, "", "billing hard limit", func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) }},
		{503, "", "overloaded", func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
		{418, "", "teapot", func(err error) bool { var e *APIError; return errors.As(err, &e) }},
	}
	for _, tt := range tests {
		apiErr := &APIError{StatusCode: tt.status, Code: tt.code, Message: tt.msg}
		err := classifyAPIError(apiErr, &http.Response{Header: http.Header{}})
		assert.True(t, tt.check(err), "status %d gave %T", tt.status, err)
	}
}

func TestGenerateSendsAuthAndBody(t *testing.T) {
	var got GenerateRequest
	var auth string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(okBody)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("secret", 2*time.Second, 1, 0, 0, srv.URL+"/")
	req := hi()
	req.Temperature = 1
	_, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 1.0, got.Temperature)
}

func TestGenerateRequiresKeyAndModel(t *testing.T) {
	_, err := NewClient(ProviderGroq, "", 0, 0, 0, 0).Generate(context.Background(), hi())
	assert.ErrorContains(t, err, "API key is missing")

	req := hi()
	req.Model = ""
	_, err = NewClient(ProviderGroq, "k", 0, 0, 0, 0).Generate(context.Background(), req)
	assert.ErrorContains(t, err, "model cannot be empty")
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{ProviderGroq, ProviderOllama, ProviderOpenAI, ProviderOpenRouter}, Providers())
	rt, ok := GetRuntime(ProviderGroq, RuntimeConfig{APIKey: "k"})
	require.True(t, ok)
	c, ok := rt.(*Client)
	require.True(t, ok)
	assert.Equal(t, "https://api.groq.com/openai/v1", c.baseURL)

	rt, _ = GetRuntime(ProviderOpenRouter, RuntimeConfig{APIKey: "k", BaseURL: "http://gw.local/v1"})
	assert.Equal(t, "http://gw.local/v1", rt.(*Client).baseURL)

	_, ok = GetRuntime("nope", RuntimeConfig{})
	assert.False(t, ok)
}
