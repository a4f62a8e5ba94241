// Package testutils provides fakes shared by package tests.
package testutils

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/tool"
)

// ErrScriptExhausted is returned when a ScriptedLLM runs out of responses.
var ErrScriptExhausted = errors.New("scripted llm: no more responses")

// ScriptedLLM replays canned responses in order and records every request.
type ScriptedLLM struct {
	mu        sync.Mutex
	name      string
	responses []*model.Response
	errs      []error
	requests  []*model.Request
	closed    bool
}

// NewScriptedLLM creates a fake model answering with responses in order.
func NewScriptedLLM(responses ...*model.Response) *ScriptedLLM {
	return &ScriptedLLM{name: "scripted", responses: responses}
}

// Text is a final response with content.
func Text(content string) *model.Response {
	return &model.Response{
		Content:      content,
		FinishReason: model.FinishReasonStop,
		Usage:        &model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Requests: 1},
	}
}

// Calls is a response requesting the given tool calls.
func Calls(calls ...tool.ToolCall) *model.Response {
	return &model.Response{
		ToolCalls:    calls,
		FinishReason: model.FinishReasonToolCalls,
		Usage:        &model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Requests: 1},
	}
}

// Call builds a tool call.
func Call(id, name string, args map[string]any) tool.ToolCall {
	return tool.ToolCall{ID: id, Name: name, Args: args}
}

// Push appends responses to the script.
func (l *ScriptedLLM) Push(responses ...*model.Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, responses...)
}

// FailNext makes the next call fail with err.
func (l *ScriptedLLM) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

// Requests returns the recorded requests.
func (l *ScriptedLLM) Requests() []*model.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.requests)
}

// Closed reports whether Close was called.
func (l *ScriptedLLM) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *ScriptedLLM) Name() string {
	return l.name
}

func (l *ScriptedLLM) Provider() model.Provider {
	return model.ProviderOpenAI
}

func (l *ScriptedLLM) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// GenerateContent yields the next scripted response. When stream is true
// the content is also yielded word by word as partial responses.
func (l *ScriptedLLM) GenerateContent(_ context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		resp, err := l.next(req)
		if err != nil {
			yield(nil, err)
			return
		}
		if stream && resp.Content != "" {
			if !yield(&model.Response{Content: resp.Content, Partial: true}, nil) {
				return
			}
		}
		yield(resp, nil)
	}
}

func (l *ScriptedLLM) next(req *model.Request) (*model.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := *req
	snapshot.Messages = slices.Clone(req.Messages)
	l.requests = append(l.requests, &snapshot)

	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	if len(l.responses) == 0 {
		return nil, ErrScriptExhausted
	}
	resp := *l.responses[0]
	l.responses = l.responses[1:]
	return &resp, nil
}

// StaticToolset serves a fixed list of tools.
type StaticToolset struct {
	name  string
	tools []tool.Tool
}

// NewStaticToolset creates a toolset over tools.
func NewStaticToolset(name string, tools ...tool.Tool) *StaticToolset {
	return &StaticToolset{name: name, tools: tools}
}

func (s *StaticToolset) Name() string {
	return s.name
}

func (s *StaticToolset) Tools(context.Context) ([]tool.Tool, error) {
	return s.tools, nil
}

var (
	_ model.LLM    = (*ScriptedLLM)(nil)
	_ tool.Toolset = (*StaticToolset)(nil)
)
