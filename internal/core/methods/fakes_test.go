package methods

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/core/prompts"
)

type chatCall struct {
	messages []domain.Message
	opts     domain.GenerationOptions
	n        int
}

// fakeChat answers from respond when set, otherwise from the queued replies
// in call order. ChatN returns nReplies when set.
type fakeChat struct {
	mu       sync.Mutex
	calls    []chatCall
	replies  []string
	nReplies [][]string
	respond  func(messages []domain.Message) (string, error)
	err      error
}

func (f *fakeChat) Chat(_ context.Context, messages []domain.Message, opts domain.GenerationOptions) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chatCall{messages: messages, opts: opts, n: 1})
	idx := len(f.calls) - 1
	respond := f.respond
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if respond != nil {
		return respond(messages)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "", nil
}

func (f *fakeChat) ChatN(_ context.Context, messages []domain.Message, opts domain.GenerationOptions, n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCall{messages: messages, opts: opts, n: n})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.nReplies) == 0 {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("gen%d", i+1)
		}
		return out, nil
	}
	next := f.nReplies[0]
	f.nReplies = f.nReplies[1:]
	return next, nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func lastUser(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

type fakeExamples struct {
	mu    sync.Mutex
	pool  []domain.FewShotExample
	err   error
	calls int
}

func (f *fakeExamples) Examples(context.Context) ([]domain.FewShotExample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pool, f.err
}

func newDeps(name string, chat ports.ChatModel, params map[string]any) ports.MethodDeps {
	return ports.MethodDeps{
		Config:  domain.MethodConfig{Name: name, Params: params},
		Chat:    chat,
		Prompts: testBank(),
	}
}

func testBank() *prompts.Bank {
	bank, err := prompts.Default()
	if err != nil {
		panic(err)
	}
	return bank
}

func metaValue(t testing.TB, res domain.ReformulationResult, key string) any {
	t.Helper()
	if res.Metadata == nil {
		t.Fatalf("metadata is nil")
	}
	v, ok := res.Metadata.Get(key)
	if !ok {
		t.Fatalf("metadata key %q missing", key)
	}
	return v
}
