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
	"fmt"
	"os"

	"github.com/kadirpekel/homelink/pkg/home"
	"github.com/kadirpekel/homelink/pkg/mcpserver"
)

// MCPServerCmd runs the home automation tool server.
type MCPServerCmd struct {
	Transport string `short:"t" help:"Transport to serve on." enum:"stdio,http" default:"stdio"`
	Addr      string `help:"Listen address for the http transport." default:":9000"`
	Name      string `help:"Server name reported during the handshake."`
}

func (c *MCPServerCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := mcpserver.New(home.New(),
		mcpserver.WithName(c.Name),
		mcpserver.WithVersion(version()),
	)
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}

	if c.Transport == "http" {
		return mcpserver.ServeHTTP(ctx, s, c.Addr)
	}
	return mcpserver.ServeStdio(ctx, s, os.Stdin, os.Stdout)
}
