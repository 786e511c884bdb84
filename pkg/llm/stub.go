package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StubProvider is a deterministic CompletionProvider for tests and keyless
// development. Responses can be scripted per model or per call sequence;
// unscripted calls return a canned completion echoing the request.
type StubProvider struct {
	mu      sync.Mutex
	scripts map[string][]stubStep
	calls   int
}

type stubStep struct {
	completion *Completion
	err        error
	block      bool
}

// NewStubProvider creates an empty stub. Without scripting it answers every
// call with a short canned completion and plausible token counts.
func NewStubProvider() *StubProvider {
	return &StubProvider{scripts: make(map[string][]stubStep)}
}

// ScriptCompletion queues a successful completion for calls whose system
// prompt contains marker. Steps are consumed in order.
func (s *StubProvider) ScriptCompletion(marker, text string, in, out int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[marker] = append(s.scripts[marker], stubStep{
		completion: &Completion{Text: text, InputTokens: in, OutputTokens: out},
	})
}

// ScriptError queues an error for calls whose system prompt contains marker.
func (s *StubProvider) ScriptError(marker string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[marker] = append(s.scripts[marker], stubStep{err: err})
}

// ScriptHang queues a step that blocks until the context expires, simulating
// a provider that never answers.
func (s *StubProvider) ScriptHang(marker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[marker] = append(s.scripts[marker], stubStep{block: true})
}

// Calls returns how many completions were requested.
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Complete implements CompletionProvider.
func (s *StubProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	s.calls++
	step, ok := s.nextStepLocked(req)
	s.mu.Unlock()

	if ok {
		if step.block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if step.err != nil {
			return nil, step.err
		}
		return step.completion, nil
	}

	return &Completion{
		Text:         fmt.Sprintf("stub completion for model %s", req.Model),
		InputTokens:  120,
		OutputTokens: 80,
	}, nil
}

// nextStepLocked pops the first queued step whose marker appears in the
// request's system or user text. Caller holds s.mu.
func (s *StubProvider) nextStepLocked(req CompletionRequest) (stubStep, bool) {
	for marker, steps := range s.scripts {
		if len(steps) == 0 {
			continue
		}
		if strings.Contains(req.System, marker) || strings.Contains(req.User, marker) {
			step := steps[0]
			s.scripts[marker] = steps[1:]
			return step, true
		}
	}
	return stubStep{}, false
}

// Compile-time interface check.
var _ CompletionProvider = (*StubProvider)(nil)
