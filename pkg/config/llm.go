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
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/homelink/pkg/httpclient"
	"github.com/kadirpekel/homelink/pkg/model"
	"github.com/kadirpekel/homelink/pkg/model/openai"
)

// Environment variables consulted for the LLM section.
const (
	EnvAzureEndpoint   = "AZURE_OPENAI_API_BASE"
	EnvAzureAPIVersion = "AZURE_OPENAI_API_VERSION"
	EnvAzureDeployment = "AZURE_OPENAI_API_DEPLOY"
	EnvAzureAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
)

// LLMConfig configures the chat model.
type LLMConfig struct {
	// Provider is "azure" or "openai". Inferred from Endpoint when empty.
	Provider string `yaml:"provider,omitempty" jsonschema:"title=Provider,description=Model provider,enum=azure,enum=openai"`

	// Endpoint is the Azure OpenAI resource URL.
	Endpoint string `yaml:"endpoint,omitempty" jsonschema:"title=Endpoint,description=Azure OpenAI resource endpoint"`

	// APIVersion is the Azure api-version.
	APIVersion string `yaml:"api_version,omitempty" jsonschema:"title=API Version,description=Azure OpenAI API version"`

	// Model is the model name, or the deployment name for Azure.
	Model string `yaml:"model,omitempty" jsonschema:"title=Model,description=Model (OpenAI) or deployment (Azure) name"`

	APIKey  string `yaml:"api_key,omitempty" jsonschema:"title=API Key,description=API key (use ${ENV_VAR}). Optional for Azure which then uses Entra ID"`
	BaseURL string `yaml:"base_url,omitempty" jsonschema:"title=Base URL,description=Custom OpenAI-compatible base URL"`

	Temperature *float64 `yaml:"temperature,omitempty" jsonschema:"title=Temperature,minimum=0,maximum=2"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" jsonschema:"title=Max Tokens,minimum=0"`
	MaxRetries  *int     `yaml:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0,default=5"`

	// Timeout bounds one request including retries.
	Timeout time.Duration `yaml:"timeout,omitempty" jsonschema:"title=Timeout"`

	TLS *httpclient.TLSConfig `yaml:"tls,omitempty" jsonschema:"title=TLS"`
}

// SetDefaults infers the provider and pulls the API key from the
// environment when it is not configured.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		if c.Endpoint != "" {
			c.Provider = string(model.ProviderAzureOpenAI)
		} else {
			c.Provider = string(model.ProviderOpenAI)
		}
	}
	if c.APIKey == "" {
		c.APIKey = providerAPIKey(c.Provider)
	}
}

// Validate checks the section using the backend's own rules.
func (c *LLMConfig) Validate() error {
	cfg := c.ModelConfig()
	cfg.SetDefaults()
	return cfg.Validate()
}

// ModelConfig converts the section to the backend configuration.
func (c *LLMConfig) ModelConfig() openai.Config {
	return openai.Config{
		Provider:    model.Provider(c.Provider),
		APIKey:      c.APIKey,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Endpoint:    c.Endpoint,
		APIVersion:  c.APIVersion,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		MaxRetries:  c.MaxRetries,
		Timeout:     c.Timeout,
		TLS:         c.TLS,
	}
}

// providerAPIKey returns the conventional API key variable for provider.
func providerAPIKey(provider string) string {
	switch model.Provider(provider) {
	case model.ProviderAzureOpenAI:
		return os.Getenv(EnvAzureAPIKey)
	case model.ProviderOpenAI:
		return os.Getenv(EnvOpenAIAPIKey)
	default:
		return ""
	}
}

// Describe returns a short human-readable summary without secrets.
func (c *LLMConfig) Describe() string {
	if model.Provider(c.Provider) == model.ProviderAzureOpenAI {
		auth := "api key"
		if c.APIKey == "" {
			auth = "entra id"
		}
		return fmt.Sprintf("azure deployment %q at %s (api %s, %s)", c.Model, c.Endpoint, c.APIVersion, auth)
	}
	name := c.Model
	if name == "" {
		name = "default model"
	}
	return fmt.Sprintf("openai %s", name)
}
