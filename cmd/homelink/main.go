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

// Command homelink runs a home automation assistant built from an MCP tool
// server, an OpenAI or Azure OpenAI chat model and an optional A2A endpoint.
//
// Usage:
//
//	homelink mcp-server                       # tool server on stdio
//	homelink mcp-server --transport http      # tool server on :9000/mcp
//	homelink chat                             # interactive client
//	homelink serve --config homelink.yaml     # A2A server
//	homelink ask http://localhost:8080 "Is the front door locked?"
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/homelink"
	"github.com/kadirpekel/homelink/pkg/config"
	"github.com/kadirpekel/homelink/pkg/logger"
)

// Environment fallbacks for the logging flags.
const (
	LogLevelEnvVar  = "LOG_LEVEL"
	LogFileEnvVar   = "LOG_FILE"
	LogFormatEnvVar = "LOG_FORMAT"
)

// CLI defines the command-line interface.
type CLI struct {
	MCPServer MCPServerCmd `cmd:"" name:"mcp-server" help:"Run the home automation MCP tool server."`
	Chat      ChatCmd      `cmd:"" help:"Chat with the assistant in the terminal."`
	Serve     ServeCmd     `cmd:"" help:"Expose the assistant over A2A."`
	Ask       AskCmd       `cmd:"" help:"Send one message to an A2A agent."`
	Schema    SchemaCmd    `cmd:"" help:"Print the configuration JSON Schema."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file (empty = environment only)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"${log_level_env}"`
	LogFile   string `help:"Log file path (empty = stderr)." env:"${log_file_env}"`
	LogFormat string `help:"Log format (simple, verbose, json)." default:"simple" env:"${log_format_env}"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(homelink.GetVersion())
	return nil
}

// version prefers the module version stamped by go install.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return homelink.Version
}

// initLogger configures slog from the global flags. Logs always go to
// stderr or a file since stdout carries the MCP stdio stream.
func initLogger(cli *CLI) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, err
	}

	if cli.LogFile == "" {
		logger.Init(level, os.Stderr, cli.LogFormat)
		return func() {}, nil
	}

	f, cleanup, err := logger.OpenLogFile(cli.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.Init(level, f, cli.LogFormat)
	return cleanup, nil
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("homelink"),
		kong.Description("Home automation assistant over MCP and A2A"),
		kong.UsageOnError(),
		kong.Vars{
			"log_level_env":  LogLevelEnvVar,
			"log_file_env":   LogFileEnvVar,
			"log_format_env": LogFormatEnvVar,
		},
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
