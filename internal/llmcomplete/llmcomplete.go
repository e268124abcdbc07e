// llmcomplete is a barebones package to abstract single-shot LLM completions across providers (OpenAI-compatible endpoints and Gemini). It purposefully does NOT
// take advantage of each provider's special features. There are no tools and no multi-turn conversations: a system prompt and a user prompt go in, text comes out.
//
// Retries are NOT done here. Transports report transient failures (see IsTransient) and callers decide what to do.
package llmcomplete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Completion is a single request.
type Completion struct {
	System      string
	User        string
	Model       string  // overrides the transport's default model if non-empty
	Temperature float64 // ex: 0.1
	MaxTokens   int     // 0 means provider default
	TopP        float64 // 0 means provider default
	JSON        bool    // ask the provider for a JSON object response, if it supports that
}

// Reply is the provider's answer to a Completion.
type Reply struct {
	Text       string
	Model      string // model that actually answered, as reported by the provider
	RequestID  string // ex: "chatcmpl-BXYJ0U9PpC3uDzeoP2ZN1nBthfnpu"
	StopReason string // pass-through of the provider's finish reason (ex: "stop", "STOP", "length")

	InputTokens  int
	OutputTokens int
}

// Completer sends one completion and returns the reply. Implementations must be safe for concurrent use and must honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, c Completion) (Reply, error)
}

// ModelLister is implemented by transports that can enumerate the models an endpoint serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ErrRetryable marks an error as retryable by the caller.
var ErrRetryable = errors.New("llmcomplete: retryable")

// ErrNoAPIKey is returned by New when the provider requires a key and none was supplied.
var ErrNoAPIKey = errors.New("llmcomplete: no API key")

// ErrEmptyReply is returned when the provider answered successfully but with no text.
var ErrEmptyReply = errors.New("llmcomplete: empty reply")

func makeRetryable(err error) error { return fmt.Errorf("%w: %w", ErrRetryable, err) }

// StatusError is an HTTP-status failure from a provider, normalized across SDKs.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error // the SDK's own error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }

// newStatusError builds a StatusError, marking 429 and 5xx as retryable.
func newStatusError(code int, msg string, err error) error {
	se := &StatusError{StatusCode: code, Message: msg, Err: err}
	if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
		return makeRetryable(se)
	}
	return se
}

// StatusCode returns the HTTP status carried by err, or 0 if err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsTransient reports whether retrying the same request might succeed: 429, 5xx, timeouts, and network errors. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRetryable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code := StatusCode(err); code != 0 {
		return code == http.StatusTooManyRequests || code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Options configures New.
type Options struct {
	Provider ProviderID // required
	BaseURL  string     // defaults to the provider's preset URL
	Model    string     // defaults to the provider's preset model
	APIKey   string     // defaults to the provider's key env var

	HTTPClient *http.Client  // optional
	Timeout    time.Duration // optional whole-request timeout enforced by the SDK; callers normally use ctx instead

	Logger *slog.Logger
}

// New returns a Completer for opts.Provider. The returned value also implements ModelLister for OpenAI-compatible providers.
func New(ctx context.Context, opts Options) (Completer, error) {
	p, ok := GetProvider(opts.Provider)
	if !ok {
		return nil, fmt.Errorf("llmcomplete: unknown provider %q", opts.Provider)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = p.BaseURL
	}
	if opts.Model == "" {
		opts.Model = p.DefaultModel
	}
	if opts.APIKey == "" {
		opts.APIKey = p.EnvKey()
	}
	if opts.APIKey == "" && p.RequiresKey {
		return nil, fmt.Errorf("%w for provider %s (set %s)", ErrNoAPIKey, p.ID, p.KeyEnv)
	}

	switch p.Type {
	case TypeOpenAI:
		return newOpenAI(p, opts), nil
	case TypeGemini:
		return newGemini(ctx, opts)
	default:
		return nil, fmt.Errorf("llmcomplete: provider type %s not implemented", p.Type)
	}
}
