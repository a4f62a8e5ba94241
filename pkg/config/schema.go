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

package config

import (
	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated configuration schema.
const SchemaID = "https://github.com/kadirpekel/homelink/schemas/config.json"

// Schema reflects the JSON Schema of Config, keyed by YAML field names.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		FieldNameTag:              "yaml",
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&Config{})
	schema.ID = SchemaID
	schema.Title = "homelink configuration"
	schema.Description = "Configuration for the homelink chat client, MCP server and A2A server"
	schema.Examples = []any{
		map[string]any{
			"llm": map[string]any{
				"provider":    "azure",
				"endpoint":    "${AZURE_OPENAI_API_BASE}",
				"api_version": "${AZURE_OPENAI_API_VERSION}",
				"model":       "${AZURE_OPENAI_API_DEPLOY}",
			},
			"history": map[string]any{
				"driver":   "sqlite",
				"database": "./homelink.db",
			},
		},
	}
	return schema
}
