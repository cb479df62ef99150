package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AssistantModels specifies the mapping of assistants to models.
	// key is the assistant name, value is the model name.
	// Use `default: <model_name>` as the default model for assistants.
	AssistantModels map[string][]string `json:"assistant_models" yaml:"assistant_models"`
}

// ProviderConfig for a model provider
type ProviderConfig struct {
	Name            string        `json:"name" yaml:"name" validate:"required"`
	Token           string        `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string        `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string      `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	OpenAI          OpenAIConfig  `json:"open_ai" yaml:"open_ai"`
	Bedrock         BedrockConfig `json:"bedrock" yaml:"bedrock"`
}

// OpenAIConfig specifies options config
type OpenAIConfig struct {
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	// APIType specifies the type of API to use:
	// OPENAI|AZURE|AZURE_AD|ANTHROPIC|GOOGLEAI|BEDROCK|PERPLEXITY
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" validate:"required"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
}

// BedrockConfig specifies AWS options
type BedrockConfig struct {
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

var validate = validator.New()

// Validate returns an error if the config is incomplete.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid LLM config"), chatmodel.ErrConfiguration)
	}
	if c.DefaultProvider != "" && !slices.ContainsFunc(c.Providers, func(p *ProviderConfig) bool {
		return p.Name == c.DefaultProvider
	}) {
		return chatmodel.NewConfigurationError("default provider not found: %s", c.DefaultProvider)
	}
	return nil
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
