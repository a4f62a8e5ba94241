package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/homelink/pkg/a2aclient"
	"github.com/kadirpekel/homelink/pkg/home"
	"github.com/kadirpekel/homelink/pkg/mcpserver"
	"github.com/kadirpekel/homelink/pkg/session"
	"github.com/kadirpekel/homelink/pkg/testutils"
	"github.com/kadirpekel/homelink/pkg/tool"
)

func newSessions(t *testing.T, llm *testutils.ScriptedLLM) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.Config{Model: llm})
	require.NoError(t, err)
	_, err = m.Initialise(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

// startServer serves s behind an httptest server whose URL is advertised in
// the agent card.
func startServer(t *testing.T, sessions *session.Manager, skills []a2a.AgentSkill, opts ...HTTPServerOption) (*HTTPServer, string) {
	t.Helper()
	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	srv := NewHTTPServer(Config{PublicURL: ts.URL, Version: "1.2.3"}, sessions, skills, opts...)
	handler = srv.Handler()
	return srv, ts.URL
}

func TestAgentCard(t *testing.T) {
	callables, err := mcpserver.HomeTools(home.New())
	require.NoError(t, err)
	tools := make([]tool.Tool, len(callables))
	for i, c := range callables {
		tools[i] = c
	}

	_, url := startServer(t, newSessions(t, testutils.NewScriptedLLM()), SkillsFromTools(tools))

	resp, err := http.Get(url + a2asrv.WellKnownAgentCardPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card a2a.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "Home Assistant", card.Name)
	assert.Equal(t, url, card.URL)
	assert.Equal(t, "1.2.3", card.Version)
	require.Len(t, card.Skills, 5)
	assert.Equal(t, "list_devices", card.Skills[0].ID)
	assert.Equal(t, "List all available devices and their current states", card.Skills[0].Description)
}

func TestAgentCard_DefaultSkill(t *testing.T) {
	srv, _ := startServer(t, newSessions(t, testutils.NewScriptedLLM()), nil)
	require.Len(t, srv.AgentCard().Skills, 1)
	assert.Equal(t, "chat", srv.AgentCard().Skills[0].ID)
}

func TestHealth(t *testing.T) {
	_, url := startServer(t, newSessions(t, testutils.NewScriptedLLM()), nil)

	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status  string         `json:"status"`
		Session session.Status `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Session.Initialised)
	assert.False(t, body.Session.ServerRunning)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	_, url := startServer(t, newSessions(t, testutils.NewScriptedLLM()), nil, WithMetrics("/metrics", metrics))

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAsk_RoundTrip(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Text("All devices are fine."), testutils.Text("Still fine."))
	sessions := newSessions(t, llm)
	_, url := startServer(t, sessions, nil)
	ctx := context.Background()

	reply, err := a2aclient.Ask(ctx, url, "how is my home?")
	require.NoError(t, err)
	assert.Equal(t, "All devices are fine.", reply.Text)
	assert.Equal(t, a2a.TaskStateCompleted, reply.State)
	require.NotEmpty(t, reply.ContextID)

	reply2, err := a2aclient.Ask(ctx, url, "and now?", a2aclient.WithContextID(reply.ContextID))
	require.NoError(t, err)
	assert.Equal(t, "Still fine.", reply2.Text)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3, "second message continues the same conversation")

	entries, err := sessions.History(ctx, reply.ContextID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestAsk_FailedTask(t *testing.T) {
	llm := testutils.NewScriptedLLM()
	llm.FailNext(errors.New("deployment not found"))
	_, url := startServer(t, newSessions(t, llm), nil)

	_, err := a2aclient.Ask(context.Background(), url, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, a2aclient.ErrTaskFailed)
	assert.Contains(t, err.Error(), "deployment not found")
}

func TestTextOf(t *testing.T) {
	parts := []a2a.Part{
		a2a.TextPart{Text: "turn on"},
		a2a.DataPart{Data: map[string]any{"x": 1}},
		a2a.TextPart{Text: "  "},
		a2a.TextPart{Text: "the light"},
	}
	assert.Equal(t, "turn on\nthe light", textOf(parts))
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, "http://0.0.0.0:8080", buildAgentCard(cfg, nil).URL)
}
