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
	"os"

	"github.com/kadirpekel/homelink/pkg/model"
)

// Zero builds a configuration from environment variables alone.
//
// When AZURE_OPENAI_API_BASE is set the Azure provider is selected, with the
// deployment from AZURE_OPENAI_API_DEPLOY and the version from
// AZURE_OPENAI_API_VERSION. Without AZURE_OPENAI_API_KEY the model
// authenticates through DefaultAzureCredential. Otherwise OpenAI is used with
// OPENAI_API_KEY.
// Defaults are not applied.
func Zero() *Config {
	cfg := &Config{}
	if endpoint := os.Getenv(EnvAzureEndpoint); endpoint != "" {
		cfg.LLM = LLMConfig{
			Provider:   string(model.ProviderAzureOpenAI),
			Endpoint:   endpoint,
			APIVersion: os.Getenv(EnvAzureAPIVersion),
			Model:      os.Getenv(EnvAzureDeployment),
		}
	} else {
		cfg.LLM = LLMConfig{Provider: string(model.ProviderOpenAI)}
	}
	return cfg
}
