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
	"strings"
	"time"

	"github.com/kadirpekel/homelink/pkg/a2aclient"
	"github.com/kadirpekel/homelink/pkg/httpclient"
)

// AskCmd sends one message to an A2A agent and prints the reply.
type AskCmd struct {
	URL       string        `arg:"" help:"Base URL of the agent."`
	Message   []string      `arg:"" help:"Message text."`
	ContextID string        `name:"context-id" help:"Continue an existing conversation."`
	Timeout   time.Duration `help:"Request timeout." default:"2m"`
	Insecure  bool          `help:"Skip TLS certificate verification."`
	CACert    string        `name:"ca-cert" help:"Custom CA certificate file." type:"existingfile"`
	ShowIDs   bool          `name:"show-ids" help:"Print the context and task ids after the reply."`
}

func (c *AskCmd) Run() error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.Timeout)
	defer cancelTimeout()

	opts := []a2aclient.Option{a2aclient.WithContextID(c.ContextID)}
	if c.Insecure || c.CACert != "" {
		opts = append(opts, a2aclient.WithTLS(&httpclient.TLSConfig{
			InsecureSkipVerify: c.Insecure,
			CACertificate:      c.CACert,
		}))
	}

	reply, err := a2aclient.Ask(ctx, c.URL, strings.Join(c.Message, " "), opts...)
	if err != nil {
		return err
	}

	fmt.Println(reply.Text)
	if c.ShowIDs {
		fmt.Printf("\ncontext: %s\ntask:    %s\n", reply.ContextID, reply.TaskID)
	}
	return nil
}
