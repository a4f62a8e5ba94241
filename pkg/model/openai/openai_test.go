package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/tool"
)

type captured struct {
	mu      sync.Mutex
	path    string
	query   string
	headers http.Header
	body    map[string]any
}

func (c *captured) snapshot() (string, string, http.Header, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.query, c.headers, c.body
}

func fakeServer(t *testing.T, status int, respond func(w http.ResponseWriter)) (*httptest.Server, *captured) {
	t.Helper()
	rec := &captured{}
	srv := httptest.NewServer(recordingHandler(rec, status, respond))
	t.Cleanup(srv.Close)
	return srv, rec
}

func fakeTLSServer(t *testing.T, respond func(w http.ResponseWriter)) (*httptest.Server, *captured) {
	t.Helper()
	rec := &captured{}
	srv := httptest.NewTLSServer(recordingHandler(rec, http.StatusOK, respond))
	t.Cleanup(srv.Close)
	return srv, rec
}

func recordingHandler(rec *captured, status int, respond func(w http.ResponseWriter)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		rec.mu.Lock()
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.headers = r.Header.Clone()
		rec.body = body
		rec.mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
			return
		}
		respond(w)
	})
}

func jsonCompletion(payload string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}
}

func sseCompletion(chunks ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}
}

func noRetries() *int {
	n := 0
	return &n
}

func newTestModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	cfg.MaxRetries = noRetries()
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

const textCompletion = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "The light is off."}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

const toolCompletion = `{
  "id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "tool_calls",
    "message": {"role": "assistant", "content": "",
      "tool_calls": [{"id": "call_1", "type": "function",
        "function": {"name": "control_light", "arguments": "{\"action\":\"on\",\"brightness\":80}"}}]}}],
  "usage": {"prompt_tokens": 30, "completion_tokens": 9, "total_tokens": 39}
}`

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "openai ok", cfg: Config{APIKey: "k"}},
		{name: "missing key", cfg: Config{}, wantErr: "api key is required"},
		{
			name: "azure without key",
			cfg:  Config{Provider: model.ProviderAzureOpenAI, Model: "dep", Endpoint: "https://x", APIVersion: "v"},
		},
		{
			name:    "azure without endpoint",
			cfg:     Config{Provider: model.ProviderAzureOpenAI, APIKey: "k", Model: "dep", APIVersion: "2024-10-21"},
			wantErr: "azure endpoint is required",
		},
		{
			name:    "azure without version",
			cfg:     Config{Provider: model.ProviderAzureOpenAI, APIKey: "k", Model: "dep", Endpoint: "https://x"},
			wantErr: "azure api version is required",
		},
		{
			name:    "azure without deployment",
			cfg:     Config{Provider: model.ProviderAzureOpenAI, APIKey: "k", Endpoint: "https://x", APIVersion: "v"},
			wantErr: "model is required",
		},
		{name: "unknown provider", cfg: Config{Provider: "bedrock", APIKey: "k"}, wantErr: "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGenerateContent_Text(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, jsonCompletion(textCompletion))
	m := newTestModel(t, Config{APIKey: "sk-test", BaseURL: srv.URL})

	temp := 0.2
	resp, err := model.Collect(t.Context(), m, &model.Request{
		SystemInstruction: "be brief",
		Messages:          []model.Message{model.UserMessage("is the light on?")},
		Config:            &model.GenerateConfig{Temperature: &temp},
	}, false, nil)
	require.NoError(t, err)

	assert.Equal(t, "The light is off.", resp.Content)
	assert.False(t, resp.HasToolCalls())
	assert.Equal(t, model.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 17, resp.Usage.TotalTokens)

	path, _, headers, body := rec.snapshot()
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestGenerateContent_ToolCalls(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, jsonCompletion(toolCompletion))
	m := newTestModel(t, Config{APIKey: "k", BaseURL: srv.URL})

	resp, err := model.Collect(t.Context(), m, &model.Request{
		Messages: []model.Message{
			model.UserMessage("turn on the light"),
			{Role: model.RoleAssistant, ToolCalls: []tool.ToolCall{{ID: "call_0", Name: "list_devices", Args: map[string]any{}}}},
			model.ToolMessage("call_0", "devices..."),
		},
		Tools: []tool.Definition{{
			Name:        "control_light",
			Description: "Control the living room light",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"action": map[string]any{"type": "string"}}},
		}},
	}, false, nil)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "control_light", resp.ToolCalls[0].Name)
	assert.Equal(t, "on", resp.ToolCalls[0].Args["action"])
	assert.EqualValues(t, 80, resp.ToolCalls[0].Args["brightness"])
	assert.Equal(t, model.FinishReasonToolCalls, resp.FinishReason)

	_, _, _, body := rec.snapshot()
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "control_light", fn["name"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	assistant := messages[1].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	assert.Equal(t, "call_0", calls[0].(map[string]any)["id"])
	toolMsg := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_0", toolMsg["tool_call_id"])
	assert.Equal(t, "devices...", toolMsg["content"])
}

func TestGenerateContent_AzureRouting(t *testing.T) {
	tests := []struct {
		name      string
		openaiEnv bool
	}{
		{name: "clean environment"},
		{name: "openai credentials in environment", openaiEnv: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.openaiEnv {
				t.Setenv("OPENAI_API_KEY", "sk-openai-secret")
				t.Setenv("OPENAI_ORG_ID", "org-1")
				t.Setenv("OPENAI_PROJECT_ID", "proj-1")
			}
			srv, rec := fakeServer(t, http.StatusOK, jsonCompletion(textCompletion))
			m := newTestModel(t, Config{
				Provider:   model.ProviderAzureOpenAI,
				APIKey:     "azure-key",
				Endpoint:   srv.URL + "/",
				APIVersion: "2024-10-21",
				Model:      "home-gpt",
			})
			assert.Equal(t, "home-gpt", m.Name())
			assert.Equal(t, model.ProviderAzureOpenAI, m.Provider())

			_, err := model.Collect(t.Context(), m, &model.Request{
				Messages: []model.Message{model.UserMessage("hi")},
			}, false, nil)
			require.NoError(t, err)

			path, query, headers, _ := rec.snapshot()
			assert.Equal(t, "/openai/deployments/home-gpt/chat/completions", path)
			assert.Contains(t, query, "api-version=2024-10-21")
			assert.Equal(t, "azure-key", headers.Get("api-key"))
			assert.Empty(t, headers.Get("Authorization"))
			assert.Empty(t, headers.Get("OpenAI-Organization"))
			assert.Empty(t, headers.Get("OpenAI-Project"))
		})
	}
}

type staticCredential struct {
	mu     sync.Mutex
	token  string
	scopes []string
}

func (c *staticCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes = opts.Scopes
	return azcore.AccessToken{Token: c.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestGenerateContent_AzureTokenCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai-secret")
	srv, rec := fakeTLSServer(t, jsonCompletion(textCompletion))
	cred := &staticCredential{token: "entra-token"}

	m := newTestModel(t, Config{
		Provider:   model.ProviderAzureOpenAI,
		Endpoint:   srv.URL,
		APIVersion: "2024-10-21",
		Model:      "home-gpt",
		Credential: cred,
		HTTPClient: srv.Client(),
	})

	resp, err := model.Collect(t.Context(), m, &model.Request{
		Messages: []model.Message{model.UserMessage("hi")},
	}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "The light is off.", resp.Content)

	path, _, headers, _ := rec.snapshot()
	assert.Equal(t, "/openai/deployments/home-gpt/chat/completions", path)
	assert.Equal(t, "Bearer entra-token", headers.Get("Authorization"))
	assert.Empty(t, headers.Get("api-key"))

	cred.mu.Lock()
	defer cred.mu.Unlock()
	assert.Equal(t, []string{"https://cognitiveservices.azure.com/.default"}, cred.scopes)
}

func TestGenerateContent_Streaming(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, sseCompletion(
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Light "}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"is on."}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":3,"total_tokens":7}}`,
	))
	m := newTestModel(t, Config{APIKey: "k", BaseURL: srv.URL})

	var partials []string
	resp, err := model.Collect(t.Context(), m, &model.Request{
		Messages: []model.Message{model.UserMessage("status?")},
	}, true, func(r *model.Response) {
		partials = append(partials, r.Content)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Light ", "is on."}, partials)
	assert.Equal(t, "Light is on.", resp.Content)
	assert.False(t, resp.Partial)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	_, _, _, body := rec.snapshot()
	assert.Equal(t, true, body["stream"])
}

func TestGenerateContent_StreamingToolCall(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, sseCompletion(
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"control_door_lock","arguments":""}}]}}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"action\":"}}]}}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"lock\"}"}}]}}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	))
	m := newTestModel(t, Config{APIKey: "k", BaseURL: srv.URL})

	resp, err := model.Collect(t.Context(), m, &model.Request{
		Messages: []model.Message{model.UserMessage("lock the door")},
	}, true, nil)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
	assert.Equal(t, "control_door_lock", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"action": "lock"}, resp.ToolCalls[0].Args)
}

func TestGenerateContent_APIError(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusBadRequest, nil)
	m := newTestModel(t, Config{APIKey: "k", BaseURL: srv.URL})

	_, err := model.Collect(t.Context(), m, &model.Request{
		Messages: []model.Message{model.UserMessage("hi")},
	}, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}

func TestConvertMessages_RejectsUnknownRole(t *testing.T) {
	_, err := convertMessages(&model.Request{Messages: []model.Message{{Role: "narrator", Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported message role")
}
