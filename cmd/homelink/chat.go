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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kadirpekel/homelink/pkg/agent"
	"github.com/kadirpekel/homelink/pkg/config"
	"github.com/kadirpekel/homelink/pkg/session"
)

// ChatCmd runs the interactive terminal client.
type ChatCmd struct {
	Start bool `help:"Start the MCP server immediately."`
	Watch bool `help:"Reload agent instructions when the config file changes."`
}

func (c *ChatCmd) Run(cli *CLI) error {
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

	sessions, _, err = newSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(context.Background()); err != nil {
			slog.Warn("Shutdown incomplete", "error", err)
		}
	}()

	if c.Watch {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	r := &repl{
		sessions: sessions,
		in:       os.Stdin,
		out:      os.Stdout,
		stream:   config.BoolValue(cfg.Agent.Stream, true),
	}
	return r.run(ctx, c.Start || cfg.MCP.AutoStart)
}

const chatHelp = `Commands:
  /start   start the MCP server (home automation tools)
  /stop    stop the MCP server
  /reset   clear the conversation
  /status  show agent and server status
  /quit    exit
Anything else is sent to the assistant.`

// repl is the line-oriented chat loop.
type repl struct {
	sessions *session.Manager
	in       io.Reader
	out      io.Writer
	stream   bool
}

func (r *repl) run(ctx context.Context, startServer bool) error {
	fmt.Fprintln(r.out, "🏠 Home Automation MCP Client")
	msg, err := r.sessions.Initialise(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "❌ Error initialising LLM: %v\n", err)
	} else {
		fmt.Fprintf(r.out, "✅ %s\n", msg)
	}
	if startServer {
		r.startServer(ctx)
	}
	fmt.Fprintln(r.out, "Type /help for commands.")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, "\n👤 ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether to exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/start":
		r.startServer(ctx)
	case "/stop":
		msg, err := r.sessions.StopServer(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "❌ Error stopping server: %v\n", err)
		} else {
			fmt.Fprintf(r.out, "🛑 %s\n", msg)
		}
	case "/reset":
		msg, err := r.sessions.Reset(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "❌ Error resetting conversation: %v\n", err)
		} else {
			fmt.Fprintf(r.out, "🔄 %s\n", msg)
		}
	case "/status":
		r.printStatus()
	default:
		r.send(ctx, line)
	}
	return false
}

func (r *repl) startServer(ctx context.Context) {
	msg, err := r.sessions.StartServer(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "✅ %s\n", msg)
}

func (r *repl) send(ctx context.Context, text string) {
	fmt.Fprint(r.out, "🤖 ")

	var opts []agent.RunOption
	streamed := false
	if r.stream {
		opts = append(opts, agent.WithPartialHandler(func(delta string) {
			streamed = true
			fmt.Fprint(r.out, delta)
		}))
	}

	result, err := r.sessions.Send(ctx, text, opts...)
	switch {
	case errors.Is(err, session.ErrNotInitialised):
		fmt.Fprintln(r.out, err.Error())
	case err != nil:
		if streamed {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "❌ %v\n", err)
	case streamed:
		fmt.Fprintln(r.out)
	default:
		fmt.Fprintln(r.out, result.FinalOutput)
	}
}

func (r *repl) printStatus() {
	st := r.sessions.Status()

	agentState := "🟡 not initialised"
	if st.Initialised {
		agentState = "🟢 ready"
	}
	serverState := "⏹️ stopped"
	if st.ServerRunning {
		serverState = "▶️ running"
		if st.Server != "" {
			serverState += " (" + st.Server + ")"
		}
	}

	fmt.Fprintf(r.out, "Agent:   %s\n", agentState)
	fmt.Fprintf(r.out, "Server:  %s\n", serverState)
	if len(st.Tools) > 0 {
		fmt.Fprintf(r.out, "Tools:   %s\n", strings.Join(st.Tools, ", "))
	}
	if st.GroupID != "" {
		fmt.Fprintf(r.out, "Thread:  %s (%d turns)\n", st.GroupID, st.Turns)
	}
}
