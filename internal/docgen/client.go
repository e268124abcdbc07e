// Package docgen turns a rendered prompt into validated documentation. It owns retries, backoff, reply validation, and a fingerprint-keyed cache with single-flight
// deduplication of concurrent identical requests.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/llmcomplete"
	"github.com/codalotl/aidoc/internal/prompt"
	"github.com/codalotl/aidoc/internal/q/health"

	"golang.org/x/sync/singleflight"
)

var (
	ErrTimeout           = errors.New("docgen: timed out")           // every attempt timed out, or the last one did
	ErrRejected          = errors.New("docgen: request rejected")    // non-retryable 4xx, or another non-transient failure
	ErrUnauthorized      = errors.New("docgen: unauthorized")        // 401 or 403
	ErrMalformedResponse = errors.New("docgen: malformed response")  // the reply failed validation; never retried
	ErrCancelled         = errors.New("docgen: cancelled")           // the caller's context was cancelled
	ErrUnavailable       = errors.New("docgen: service unavailable") // retries exhausted on 429, 5xx, or network errors
)

// maxAttempts is the hard upper bound on attempts per request, whatever the configuration says.
const maxAttempts = 3

// Client generates docs through a Completer. It is safe for concurrent use. The cache lives as long as the Client.
type Client struct {
	completer llmcomplete.Completer
	cfg       config.Client
	cache     *Cache

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight

	health.Ctx
}

// flight is the shared context of one in-flight fingerprint. It is cancelled when its last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New returns a Client. cfg supplies sampling settings, attempts, delays, the per-attempt timeout, and the cache size.
func New(completer llmcomplete.Completer, cfg config.Client, logger *slog.Logger) *Client {
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > maxAttempts {
		cfg.MaxAttempts = maxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.Default().Client.Timeout
	}
	return &Client{
		completer: completer,
		cfg:       cfg,
		cache:     NewCache(cfg.CacheSize),
		flights:   make(map[string]*flight),
		Ctx:       health.NewCtx(logger),
	}
}

// Cache returns the client's cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Purge clears the cache. Call it when configuration changes.
func (c *Client) Purge() {
	c.cache.Purge()
}

// Generate returns documentation for req. A cached doc is returned without a remote call. Otherwise concurrent calls with the same fingerprint share one remote
// exchange and all receive its result; a caller whose ctx ends stops waiting with ErrCancelled, and the exchange itself is cancelled once no caller is waiting.
func (c *Client) Generate(ctx context.Context, req prompt.Request) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return Doc{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if doc, ok := c.cache.Get(req.Fingerprint); ok {
		c.Debug("docgen.cache_hit", "name", req.Name, "fingerprint", shortFingerprint(req.Fingerprint))
		return doc, nil
	}

	for {
		f := c.join(ctx, req.Fingerprint)
		ch := c.group.DoChan(req.Fingerprint, func() (any, error) {
			return c.generate(f.ctx, req)
		})

		select {
		case res := <-ch:
			c.leave(req.Fingerprint, f)
			if res.Err != nil {
				// The shared exchange was cancelled because every earlier waiter left, but this caller still wants an answer.
				if errors.Is(res.Err, ErrCancelled) && ctx.Err() == nil {
					continue
				}
				return Doc{}, res.Err
			}
			return res.Val.(Doc).clone(), nil
		case <-ctx.Done():
			c.leave(req.Fingerprint, f)
			return Doc{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
}

func (c *Client) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Client) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

// generate runs the attempt loop for one request. Only transient failures are retried.
func (c *Client) generate(ctx context.Context, req prompt.Request) (Doc, error) {
	log := c.With("name", req.Name, "fingerprint", shortFingerprint(req.Fingerprint))
	completion := req.Completion(c.cfg)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			sleep := c.backoff(attempt - 1)
			log.Log("docgen.retry", "attempt", attempt, "max", c.cfg.MaxAttempts, "sleep", sleep, "err", lastErr.Error())
			if err := sleepCtx(ctx, sleep); err != nil {
				return Doc{}, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}

		log.Debug("docgen.request", "attempt", attempt, "tokens", req.Tokens, "user", health.Truncate(req.User, 4000))

		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		reply, err := c.completer.Complete(actx, completion)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			doc, perr := Parse(reply.Text, req.Expect)
			if perr != nil {
				log.Debug("docgen.malformed_reply", "text", health.Truncate(reply.Text, 4000))
				return Doc{}, log.LogWrappedErr("docgen.parse", perr, "model", reply.Model)
			}
			c.cache.Put(req.Fingerprint, doc)
			log.Debug("docgen.ok", "attempt", attempt, "model", reply.Model, "in", reply.InputTokens, "out", reply.OutputTokens)
			return doc, nil
		}

		if ctx.Err() != nil {
			return Doc{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}

		var retry bool
		lastErr, retry = classify(err, timedOut)
		if !retry {
			return Doc{}, log.LogWrappedErr("docgen.generate", lastErr, "attempt", attempt)
		}
	}
	return Doc{}, log.LogWrappedErr("docgen.generate", lastErr, "attempts", c.cfg.MaxAttempts)
}

// classify maps a transport error to one of the package's errors and reports whether another attempt may help.
func classify(err error, timedOut bool) (error, bool) {
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err), true
	}
	if errors.Is(err, llmcomplete.ErrEmptyReply) {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err), false
	}
	switch code := llmcomplete.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err), false
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRejected, err), false
	}
	if llmcomplete.IsTransient(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err), true
	}
	return fmt.Errorf("%w: %w", ErrRejected, err), false
}

// backoff returns the wait before retry n (1-based): BaseDelay doubled n-1 times, capped at MaxDelay, then jittered uniformly into [d/2, d].
func (c *Client) backoff(n int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 1; i < n && d < c.cfg.MaxDelay; i++ {
		d *= 2
	}
	if c.cfg.MaxDelay > 0 && d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(d-half+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping sends a minimal completion to check that the endpoint, model, and credential work. It makes one attempt and maps errors like Generate does.
func (c *Client) Ping(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.completer.Complete(actx, llmcomplete.Completion{
		System:      "Reply with the single word: pong",
		User:        "ping",
		Model:       c.cfg.Model,
		Temperature: 0.1,
		MaxTokens:   32,
		TopP:        0.9,
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	mapped, _ := classify(err, errors.Is(actx.Err(), context.DeadlineExceeded))
	return c.LogWrappedErr("docgen.ping", mapped)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
