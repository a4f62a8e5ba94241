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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/homelink/pkg/config"
	"github.com/kadirpekel/homelink/pkg/observability"
	"github.com/kadirpekel/homelink/pkg/server"
	"github.com/kadirpekel/homelink/pkg/session"
	"github.com/kadirpekel/homelink/pkg/task"
)

// ServeCmd exposes the assistant as an A2A agent.
type ServeCmd struct {
	Host      string `help:"Listen host (overrides config)."`
	Port      int    `help:"Listen port (overrides config)."`
	PublicURL string `name:"public-url" help:"URL advertised in the agent card."`
	NoMCP     bool   `name:"no-mcp" help:"Do not start the MCP server."`
	Watch     bool   `help:"Reload agent instructions when the config file changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	var sessions *session.Manager
	cfg, loader, err := loadConfig(ctx, cli.Config, config.WithOnChange(func(cfg *config.Config) {
		if sessions != nil {
			applyReload(sessions, cfg)
		}
	}))
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)

	cfg.Observability.Tracing.ServiceVersion = version()
	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialise observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	var history session.HistoryStore
	sessions, history, err = newSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(context.Background()); err != nil {
			slog.Warn("Shutdown incomplete", "error", err)
		}
	}()

	if _, err := sessions.Initialise(ctx); err != nil {
		return fmt.Errorf("failed to initialise agent: %w", err)
	}

	var skills []a2a.AgentSkill
	if !c.NoMCP {
		if _, err := sessions.StartServer(ctx); err != nil {
			slog.Warn("Serving without home automation tools", "error", err)
		} else if tools, err := sessions.Toolset().Tools(ctx); err == nil {
			skills = server.SkillsFromTools(tools)
		}
	}

	var opts []server.HTTPServerOption
	if cfg.Server.PersistTasks {
		tasks, err := task.FromHistory(ctx, history)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithTaskStore(tasks))
	}
	if path, handler := obs.MetricsEndpoint(); handler != nil {
		opts = append(opts, server.WithMetrics(path, handler))
	}

	srv := server.NewHTTPServer(cfg.Server.ServerConfig(cfg.Agent.Name, version()), sessions, skills, opts...)
	card := srv.AgentCard()
	fmt.Printf("🚀 %s ready\n", card.Name)
	fmt.Printf("   Agent Card:  %s/.well-known/agent-card.json\n", card.URL)
	fmt.Printf("   Health:      %s/health\n", card.URL)
	fmt.Printf("   Tools:       %d\n", len(skills))
	fmt.Printf("   History:     %s (tasks persisted: %t)\n", cfg.History.Driver, cfg.Server.PersistTasks)
	if path, handler := obs.MetricsEndpoint(); handler != nil {
		fmt.Printf("   Metrics:     %s%s\n", card.URL, path)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch {
		g.Go(func() error {
			if err := loader.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *ServeCmd) applyOverrides(cfg *config.Config) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.PublicURL != "" {
		cfg.Server.PublicURL = c.PublicURL
	}
}
