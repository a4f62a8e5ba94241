// Package utils provides token counting for conversation budgeting.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with the encoding of a given model.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
	mu       sync.RWMutex
}

// Message represents a message for token counting.
type Message struct {
	Role    string
	Content string
}

const (
	// <|start|>role|message<|end|>
	tokensPerMessage = 3
	// Every reply is primed with <|start|>assistant<|message|>
	tokensReplyPriming = 3
)

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for model. Unknown models (for example
// Azure deployment names) fall back to the encoding chosen by EncodingForModel.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(EncodingForModel(model))
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens in a message list including per-message and
// reply priming overhead.
// https://github.com/openai/openai-cookbook/blob/main/examples/How_to_count_tokens_with_tiktoken.ipynb
func (tc *TokenCounter) CountMessages(messages []Message) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(tc.encoding.Encode(msg.Role, nil, nil))
		total += len(tc.encoding.Encode(msg.Content, nil, nil))
	}
	return total + tokensReplyPriming
}

// Model returns the model name this counter is configured for.
func (tc *TokenCounter) Model() string {
	return tc.model
}

// EncodingForModel returns the encoding name for a model by prefix,
// defaulting to cl100k_base.
func EncodingForModel(model string) string {
	prefixes := []struct {
		prefix   string
		encoding string
	}{
		{"gpt-4o", "o200k_base"},
		{"gpt-4.1", "o200k_base"},
		{"o1", "o200k_base"},
		{"o3", "o200k_base"},
		{"o4", "o200k_base"},
		{"gpt-4", "cl100k_base"},
		{"gpt-35", "cl100k_base"},
		{"gpt-3.5", "cl100k_base"},
	}

	for _, p := range prefixes {
		if strings.HasPrefix(model, p.prefix) {
			return p.encoding
		}
	}
	return "cl100k_base"
}
