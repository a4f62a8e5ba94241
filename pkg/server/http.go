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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/homelink/pkg/observability"
	"github.com/kadirpekel/homelink/pkg/session"
	"github.com/kadirpekel/homelink/pkg/tool"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8080

	defaultShutdownTimeout = 10 * time.Second
)

// Config configures the A2A HTTP server.
type Config struct {
	Host string
	Port int

	// PublicURL is advertised in the agent card. Defaults to http://host:port.
	PublicURL string

	Name        string
	Description string
	Version     string
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Name == "" {
		c.Name = "Home Assistant"
	}
	if c.Description == "" {
		c.Description = "AI agent with dynamic tool discovery for smart home control."
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTPServer serves one agent over A2A JSON-RPC.
type HTTPServer struct {
	cfg      Config
	card     *a2a.AgentCard
	sessions *session.Manager
	handler  http.Handler
	server   *http.Server

	taskStore      a2asrv.TaskStore
	metricsPath    string
	metricsHandler http.Handler
}

// HTTPServerOption configures the HTTP server.
type HTTPServerOption func(*HTTPServer)

// WithTaskStore sets the task store. a2a-go keeps tasks in memory otherwise.
func WithTaskStore(store a2asrv.TaskStore) HTTPServerOption {
	return func(s *HTTPServer) {
		s.taskStore = store
	}
}

// WithMetrics mounts a metrics handler at path.
func WithMetrics(path string, handler http.Handler) HTTPServerOption {
	return func(s *HTTPServer) {
		s.metricsPath = path
		s.metricsHandler = handler
	}
}

// NewHTTPServer builds the routes for sessions. skills are advertised in
// the agent card; see SkillsFromTools.
func NewHTTPServer(cfg Config, sessions *session.Manager, skills []a2a.AgentSkill, opts ...HTTPServerOption) *HTTPServer {
	cfg.SetDefaults()

	s := &HTTPServer{cfg: cfg, sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}

	s.card = buildAgentCard(cfg, skills)
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// AgentCard returns the advertised card.
func (s *HTTPServer) AgentCard() *a2a.AgentCard {
	return s.card
}

// routes wires:
//   - GET  /.well-known/agent-card.json  agent card (a2a-go native)
//   - POST /                             JSON-RPC (a2a-go native)
//   - GET  /health                       liveness and session status
//   - GET  /metrics                      prometheus exposition, when enabled
func (s *HTTPServer) routes() http.Handler {
	var handlerOpts []a2asrv.RequestHandlerOption
	if s.taskStore != nil {
		handlerOpts = append(handlerOpts, a2asrv.WithTaskStore(s.taskStore))
	}
	requestHandler := a2asrv.NewHandler(NewExecutor(s.sessions), handlerOpts...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware("homelink.a2a"))

	r.Handle(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(s.card))
	r.Handle("/", a2asrv.NewJSONRPCHandler(requestHandler))
	r.Get("/health", s.handleHealth)
	if s.metricsHandler != nil {
		r.Handle(s.metricsPath, s.metricsHandler)
	}
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"session": s.sessions.Status(),
	})
}

// Start serves until ctx is cancelled or the listener fails.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("A2A server listening", "address", s.cfg.Address(), "card", s.card.URL+a2asrv.WellKnownAgentCardPath)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("a2a server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	slog.Info("Shutting down A2A server")
	return s.server.Shutdown(ctx)
}

func buildAgentCard(cfg Config, skills []a2a.AgentSkill) *a2a.AgentCard {
	url := cfg.PublicURL
	if url == "" {
		url = "http://" + cfg.Address()
	}

	if len(skills) == 0 {
		skills = []a2a.AgentSkill{{
			ID:          "chat",
			Name:        cfg.Name,
			Description: cfg.Description,
			Tags:        []string{"general", "assistant"},
		}}
	}

	return &a2a.AgentCard{
		Name:               cfg.Name,
		Description:        cfg.Description,
		URL:                url,
		Version:            cfg.Version,
		ProtocolVersion:    "0.3.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills,
		Capabilities: a2a.AgentCapabilities{
			Streaming: true,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}
}

// SkillsFromTools advertises each tool as an agent skill.
func SkillsFromTools(tools []tool.Tool) []a2a.AgentSkill {
	skills := make([]a2a.AgentSkill, 0, len(tools))
	for _, t := range tools {
		skills = append(skills, a2a.AgentSkill{
			ID:          t.Name(),
			Name:        t.Name(),
			Description: t.Description(),
			Tags:        []string{"home-automation", "mcp"},
		})
	}
	return skills
}
