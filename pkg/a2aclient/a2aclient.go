// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package a2aclient sends single messages to an A2A agent.
package a2aclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	sdk "github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/kadirpekel/homelink/pkg/httpclient"
)

// Reply is the agent's answer to one message.
type Reply struct {
	Text      string
	ContextID string
	TaskID    string
	State     a2a.TaskState
}

type options struct {
	contextID  string
	httpClient *http.Client
	tls        *httpclient.TLSConfig
}

// Option customises Ask.
type Option func(*options)

// WithContextID continues an existing conversation.
func WithContextID(id string) Option {
	return func(o *options) {
		o.contextID = id
	}
}

// WithHTTPClient resolves the agent card with client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTLS resolves the agent card over a transport configured by cfg.
func WithTLS(cfg *httpclient.TLSConfig) Option {
	return func(o *options) {
		o.tls = cfg
	}
}

// ErrTaskFailed is returned when the remote task ends in the failed state.
var ErrTaskFailed = errors.New("remote task failed")

// Ask resolves the agent card at baseURL and sends text as one user message.
func Ask(ctx context.Context, baseURL, text string, opts ...Option) (*Reply, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	resolver := agentcard.DefaultResolver
	switch {
	case o.httpClient != nil:
		resolver = agentcard.NewResolver(o.httpClient)
	case o.tls != nil:
		transport, err := httpclient.ConfigureTLS(o.tls)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		resolver = agentcard.NewResolver(&http.Client{Transport: transport})
	}

	card, err := resolver.Resolve(ctx, strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agent card: %w", err)
	}

	client, err := sdk.NewFromCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("failed to create a2a client: %w", err)
	}
	defer func() { _ = client.Destroy() }()

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	msg.ContextID = o.contextID

	result, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("send message failed: %w", err)
	}
	return toReply(result)
}

func toReply(result a2a.SendMessageResult) (*Reply, error) {
	switch v := result.(type) {
	case *a2a.Task:
		reply := &Reply{
			ContextID: v.ContextID,
			TaskID:    string(v.ID),
			State:     v.Status.State,
		}
		if v.Status.State == a2a.TaskStateFailed {
			reason := "unknown error"
			if v.Status.Message != nil {
				reason = textOf(v.Status.Message.Parts)
			}
			return reply, fmt.Errorf("%w: %s", ErrTaskFailed, reason)
		}
		var texts []string
		for _, artifact := range v.Artifacts {
			if t := textOf(artifact.Parts); t != "" {
				texts = append(texts, t)
			}
		}
		reply.Text = strings.Join(texts, "\n")
		return reply, nil

	case *a2a.Message:
		return &Reply{
			Text:      textOf(v.Parts),
			ContextID: v.ContextID,
		}, nil

	default:
		return nil, fmt.Errorf("unexpected result type %T", result)
	}
}

func textOf(parts []a2a.Part) string {
	var texts []string
	for _, p := range parts {
		if tp, ok := p.(a2a.TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "")
}
