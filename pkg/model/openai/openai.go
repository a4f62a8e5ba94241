// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openai provides an LLM implementation on the Chat Completions API,
// talking either to OpenAI or to an Azure OpenAI deployment.
//
//   - Unified GenerateContent method with stream boolean
//   - Returns iter.Seq2[*Response, error]
//   - Streaming aggregates chunks with the SDK accumulator; partial responses
//     carry text deltas and the final response carries tool calls and usage
//   - Transport retries are handled by pkg/httpclient, SDK retries are off
//   - Azure authenticates with the api-key header, or with an Entra ID token
//     from azidentity's DefaultAzureCredential when no key is configured
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/kadirpekel/homelink/pkg/httpclient"
	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/observability"
	"github.com/kadirpekel/homelink/pkg/tool"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultModel         = "gpt-4o-mini"
	defaultMaxRetries    = 5
	defaultTimeout       = 120 * time.Second
)

// Config configures the chat completions client.
type Config struct {
	// Provider selects OpenAI or Azure OpenAI routing. Defaults to OpenAI.
	Provider model.Provider

	// APIKey authenticates requests. Optional for Azure.
	APIKey string

	// Credential authenticates Azure requests when APIKey is empty.
	// Defaults to azidentity.NewDefaultAzureCredential.
	Credential azcore.TokenCredential

	// Model is the model name (OpenAI) or deployment name (Azure).
	Model string

	// BaseURL overrides the OpenAI API base URL.
	BaseURL string

	// Endpoint is the Azure resource endpoint, e.g. https://x.openai.azure.com.
	Endpoint string

	// APIVersion is the Azure api-version query parameter.
	APIVersion string

	Temperature *float64
	MaxTokens   int

	// MaxRetries for rate limits and transient failures.
	MaxRetries *int

	// Timeout bounds a single request, retries included.
	Timeout time.Duration

	TLS *httpclient.TLSConfig

	// HTTPClient replaces the default retrying client. Intended for tests.
	HTTPClient *http.Client
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = model.ProviderOpenAI
	}
	if c.Model == "" && c.Provider == model.ProviderOpenAI {
		c.Model = defaultModel
	}
	if c.BaseURL == "" && c.Provider == model.ProviderOpenAI {
		c.BaseURL = defaultOpenAIBaseURL
	}
	if c.MaxRetries == nil {
		retries := defaultMaxRetries
		c.MaxRetries = &retries
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks required fields for the selected provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case model.ProviderOpenAI:
		if c.APIKey == "" {
			return errors.New("api key is required")
		}
	case model.ProviderAzureOpenAI:
		if c.Endpoint == "" {
			return errors.New("azure endpoint is required")
		}
		if c.APIVersion == "" {
			return errors.New("azure api version is required")
		}
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be non-negative, got %d", c.MaxTokens)
	}
	return nil
}

// Model implements model.LLM.
type Model struct {
	client openai.Client
	config Config
}

// New creates a chat completions model.
func New(cfg Config) (*Model, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid openai config: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		base, err := httpclient.ConfigureTLS(cfg.TLS)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{
			Transport: httpclient.NewTransport(base,
				httpclient.WithMaxRetries(*cfg.MaxRetries),
				httpclient.WithBaseDelay(2*time.Second),
				httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
			),
		}
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}

	if cfg.Provider == model.ProviderAzureOpenAI {
		azureOpts, err := azureOptions(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, azureOpts...)
	} else {
		opts = append(opts,
			option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"),
			option.WithAPIKey(cfg.APIKey),
		)
	}

	return &Model{
		client: openai.NewClient(opts...),
		config: cfg,
	}, nil
}

// azureOptions routes requests to /openai/deployments/{model}/ on the Azure
// endpoint. The client defaults pick up OPENAI_API_KEY and friends from the
// environment; those headers are removed so OpenAI credentials never reach
// Azure.
func azureOptions(cfg Config) ([]option.RequestOption, error) {
	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		option.WithHeaderDel("authorization"),
		option.WithHeaderDel("openai-organization"),
		option.WithHeaderDel("openai-project"),
	}

	if cfg.APIKey != "" {
		return append(opts, azure.WithAPIKey(cfg.APIKey)), nil
	}

	cred := cfg.Credential
	if cred == nil {
		dc, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}
		cred = dc
	}
	return append(opts, azure.WithTokenCredential(cred)), nil
}

func (m *Model) Name() string {
	return m.config.Model
}

func (m *Model) Provider() model.Provider {
	return m.config.Provider
}

func (m *Model) Close() error {
	return nil
}

// GenerateContent implements model.LLM.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		params, err := m.buildParams(req)
		if err != nil {
			yield(nil, err)
			return
		}

		start := time.Now()
		var resp *model.Response
		if stream {
			resp, err = m.generateStreaming(ctx, params, yield)
		} else {
			resp, err = m.generate(ctx, params)
		}

		in, out := 0, 0
		if resp != nil && resp.Usage != nil {
			in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, m.config.Model, time.Since(start), in, out, err)

		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		yield(resp, nil)
	}
}

// errStopped signals that the consumer stopped iterating mid-stream.
var errStopped = errors.New("iteration stopped")

func (m *Model) generate(ctx context.Context, params openai.ChatCompletionNewParams) (*model.Response, error) {
	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no response choices returned")
	}
	return toResponse(completion.Choices[0].Message, completion.Choices[0].FinishReason, completion.Usage)
}

func (m *Model) generateStreaming(ctx context.Context, params openai.ChatCompletionNewParams, yield func(*model.Response, error) bool) (*model.Response, error) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		if !acc.AddChunk(chunk) {
			slog.Warn("Discarding out-of-sequence completion chunk", "id", chunk.ID)
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if !yield(&model.Response{Content: chunk.Choices[0].Delta.Content, Partial: true}, nil) {
				return nil, errStopped
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	if len(acc.Choices) == 0 {
		return nil, errors.New("no response choices returned")
	}
	return toResponse(acc.Choices[0].Message, acc.Choices[0].FinishReason, acc.Usage)
}

func (m *Model) buildParams(req *model.Request) (openai.ChatCompletionNewParams, error) {
	messages, err := convertMessages(req)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.config.Model),
		Messages: messages,
	}

	temperature := m.config.Temperature
	maxTokens := m.config.MaxTokens
	if req.Config != nil {
		if req.Config.Temperature != nil {
			temperature = req.Config.Temperature
		}
		if req.Config.MaxTokens != nil {
			maxTokens = *req.Config.MaxTokens
		}
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

func convertMessages(req *model.Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)

	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal arguments for %s: %w", tc.Name, err)
				}
				calls = append(calls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: calls,
			}
			messages = append(messages, assistant.ToParam())
		case model.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return messages, nil
}

func convertTools(defs []tool.Definition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return tools
}

func toResponse(msg openai.ChatCompletionMessage, finishReason string, usage openai.CompletionUsage) (*model.Response, error) {
	resp := &model.Response{
		Content:      msg.Content,
		FinishReason: model.FinishReason(finishReason),
		Usage: &model.Usage{
			PromptTokens:     int(usage.PromptTokens),
			CompletionTokens: int(usage.CompletionTokens),
			TotalTokens:      int(usage.TotalTokens),
			Requests:         1,
		},
	}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse arguments for %s: %w", tc.Function.Name, err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, tool.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return resp, nil
}

var _ model.LLM = (*Model)(nil)
