package llmcomplete

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codalotl/aidoc/internal/q/health"
)

// MockStep is one scripted outcome for Mock.
type MockStep struct {
	Text  string
	Err   error
	Delay time.Duration // wait before answering; honors ctx
}

// Mock is a Completer for tests. Script steps are consumed in order, one per call; once the script is exhausted, Responses is consulted: the reply is the value of
// the first key (in sorted order) contained in the user prompt, case-insensitively.
type Mock struct {
	Script    []MockStep
	Responses map[string]string
	Delay     time.Duration   // applied to every call, before any step delay
	Block     <-chan struct{} // if non-nil, every call waits until it is closed (or ctx is done)

	mu       sync.Mutex
	calls    int
	requests []Completion
}

var _ Completer = (*Mock)(nil)

// NewMock returns a Mock that answers from responses.
func NewMock(responses map[string]string) *Mock {
	return &Mock{Responses: responses}
}

func (m *Mock) Complete(ctx context.Context, c Completion) (Reply, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.requests = append(m.requests, c)
	m.mu.Unlock()

	if err := m.wait(ctx, m.Delay); err != nil {
		return Reply{}, err
	}
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}

	if idx < len(m.Script) {
		step := m.Script[idx]
		if err := m.wait(ctx, step.Delay); err != nil {
			return Reply{}, err
		}
		if step.Err != nil {
			return Reply{}, step.Err
		}
		return Reply{Text: step.Text, Model: "mock", StopReason: "stop"}, nil
	}

	lower := strings.ToLower(c.User)
	keys := make([]string, 0, len(m.Responses))
	for k := range m.Responses {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.Contains(lower, strings.ToLower(k)) {
			return Reply{Text: m.Responses[k], Model: "mock", StopReason: "stop"}, nil
		}
	}
	return Reply{}, fmt.Errorf("no mock response for %q", health.Truncate(c.User, 200))
}

// Calls returns how many times Complete has been called.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every Completion received, in call order.
func (m *Mock) Requests() []Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *Mock) wait(ctx context.Context, d time.Duration) error {
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
