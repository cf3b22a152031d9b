package ai

import (
	"fmt"
	"strings"
	"time"
)

// APIError is a non-2xx answer from a model runtime. Provider and Model
// identify which configured endpoint produced it.
type APIError struct {
	Provider   string         `json:"-"`
	Model      string         `json:"-"`
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s returned status=%d", e.source(), e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", e.RequestID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%s", e.Message)
	}
	return b.String()
}

func (e *APIError) source() string {
	if e == nil || e.Provider == "" {
		return "provider"
	}
	return e.Provider
}

// AuthError is a rejected or missing API key (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("API key rejected (check api_key or CLUSTERLENS_API_KEY): %s", e.APIError.Error())
}

// RateLimitError is a 429. RetryAfter is set when the provider asked for a delay.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s is rate limiting questions, retry in about %ds: %s", e.source(), int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("%s is rate limiting questions (raise retry_max_attempts to wait it out): %s", e.source(), e.APIError.Error())
}

// ModelNotFoundError means the configured model does not exist on the provider.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %q is not available on %s (see clusterlens models): %s", e.Model, e.source(), e.APIError.Error())
	}
	return fmt.Sprintf("model not available on %s: %s", e.source(), e.APIError.Error())
}

// BadRequestError is a 400, usually a prompt over the model's context window.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("request refused (lower prompt_token_limit if the dataset is large): %s", e.APIError.Error())
}

// QuotaExceededError reports exhausted credits or billing limits.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exhausted: %s", e.source(), e.APIError.Error())
}

// ServerError is a 5xx from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed to answer: %s", e.source(), e.APIError.Error())
}

// UnreachableError means no HTTP response came back at all.
type UnreachableError struct {
	Provider string
	Host     string
	Err      error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	switch {
	case e.Provider == ProviderOllama:
		return fmt.Sprintf("ollama unreachable at %s (is ollama serve running? set ollama_host otherwise): %v", e.Host, e.Err)
	case e.Host != "":
		return fmt.Sprintf("%s unreachable at %s: %v", e.Provider, e.Host, e.Err)
	}
	return fmt.Sprintf("%s unreachable: %v", e.Provider, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }
