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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/homelink/pkg/config"
	"github.com/kadirpekel/homelink/pkg/model/openai"
	"github.com/kadirpekel/homelink/pkg/session"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig loads the file named by --config, or the zero-config when the
// flag is empty.
func loadConfig(ctx context.Context, path string, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	cfg, loader, err := config.LoadFile(ctx, path, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path == "" {
		slog.Info("Using zero-config mode", "llm", cfg.LLM.Describe())
	} else {
		slog.Info("Loaded configuration", "path", loader.Path(), "llm", cfg.LLM.Describe())
	}
	return cfg, loader, nil
}

// newSessions wires the model, history store and MCP settings into a
// session manager. The manager owns the returned history store.
func newSessions(ctx context.Context, cfg *config.Config) (*session.Manager, session.HistoryStore, error) {
	llm, err := openai.New(cfg.LLM.ModelConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model: %w", err)
	}

	history, err := cfg.History.Open(ctx)
	if err != nil {
		_ = llm.Close()
		return nil, nil, err
	}

	self, err := os.Executable()
	if err != nil {
		self = "homelink"
	}

	m, err := session.NewManager(session.Config{
		Model:   llm,
		Agent:   cfg.Agent.SessionConfig(),
		Server:  cfg.MCP.ToolsetConfig(self),
		History: history,
	})
	if err != nil {
		_ = llm.Close()
		_ = history.Close()
		return nil, nil, err
	}
	return m, history, nil
}

// applyReload pushes the reloadable parts of cfg into a running manager.
func applyReload(m *session.Manager, cfg *config.Config) {
	if err := m.SetInstructions(cfg.Agent.InstructionWithTools, cfg.Agent.InstructionWithoutTools); err != nil {
		slog.Error("Failed to apply reloaded instructions", "error", err)
		return
	}
	slog.Info("Applied reloaded agent instructions")
}
