package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mcp"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// agentConfig is the agent file, YAML or TOML.
type agentConfig struct {
	Name        string `json:"name" yaml:"name" toml:"name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Preamble    string `json:"preamble,omitempty" yaml:"preamble,omitempty" toml:"preamble"`

	MaxTurns     int    `json:"max_turns,omitempty" yaml:"max_turns,omitempty" toml:"max_turns" validate:"gte=0"`
	ToolTimeout  string `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty" toml:"tool_timeout"`
	ModelTimeout string `json:"model_timeout,omitempty" yaml:"model_timeout,omitempty" toml:"model_timeout"`
	Sequential   bool   `json:"sequential,omitempty" yaml:"sequential,omitempty" toml:"sequential"`

	// Model is the preferred model when llm config has no assistant mapping.
	Model       string  `json:"model,omitempty" yaml:"model,omitempty" toml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature" validate:"gte=0,lte=2"`

	// Skills are paths to skill files, relative to the agent file.
	Skills []string `json:"skills,omitempty" yaml:"skills,omitempty" toml:"skills"`
	// Vars are the template data of the skill context documents.
	Vars map[string]any `json:"vars,omitempty" yaml:"vars,omitempty" toml:"vars"`

	Servers []mcp.TransportConfig `json:"servers,omitempty" yaml:"servers,omitempty" toml:"servers" validate:"dive"`

	toolTimeout  time.Duration
	modelTimeout time.Duration
	dir          string
}

var validate = validator.New()

func loadAgentConfig(path string) (*agentConfig, error) {
	cfg := new(agentConfig)
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err = toml.DecodeFile(path, cfg)
	} else {
		err = configloader.UnmarshalAndExpand(path, cfg)
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "unable to load agent config %s", path), chatmodel.ErrConfiguration)
	}
	cfg.dir = filepath.Dir(path)

	if err = cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *agentConfig) validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid agent config"), chatmodel.ErrConfiguration)
	}

	var err error
	if c.toolTimeout, err = parseDuration("tool_timeout", c.ToolTimeout); err != nil {
		return err
	}
	if c.modelTimeout, err = parseDuration("model_timeout", c.ModelTimeout); err != nil {
		return err
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = assistants.DefaultMaxTurns
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, chatmodel.NewConfigurationError("invalid %s: %q", field, s)
	}
	return d, nil
}

// skillPaths returns the skill files resolved against the agent file.
func (c *agentConfig) skillPaths() []string {
	paths := make([]string, 0, len(c.Skills))
	for _, p := range c.Skills {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

func (c *agentConfig) options() []assistants.Option {
	opts := []assistants.Option{
		assistants.WithName(c.Name),
		assistants.WithDescription(c.Description),
		assistants.WithToolTimeout(c.toolTimeout),
		assistants.WithModelTimeout(c.modelTimeout),
		assistants.WithSequentialDispatch(c.Sequential),
	}
	if c.Temperature > 0 {
		opts = append(opts, assistants.WithTemperature(c.Temperature))
	}
	return opts
}
