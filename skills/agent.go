package skills

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

// AgentConfig accumulates the preamble, tools and context documents of
// the skills applied to an agent.
type AgentConfig struct {
	Preamble         string
	Tools            []tools.ITool
	ContextDocuments []Document

	applied []string
}

// NewAgentConfig returns an AgentConfig with the base preamble.
func NewAgentConfig(preamble string) *AgentConfig {
	return &AgentConfig{Preamble: preamble}
}

// Apply adds the components of skill.
func (c *AgentConfig) Apply(skill Skill) error {
	comp, err := skill.Components()
	if err != nil {
		return errors.WithMessagef(err, "skill %s", skill.Name())
	}
	c.Preamble = MergePreamble(c.Preamble, comp.Preamble)
	c.Tools = append(c.Tools, comp.Tools...)
	c.ContextDocuments = append(c.ContextDocuments, comp.ContextDocuments...)
	c.applied = append(c.applied, skill.Name())

	logger.KV(xlog.DEBUG,
		"status", "skill_applied",
		"skill", skill.Name(),
		"tools", len(comp.Tools),
		"documents", len(comp.ContextDocuments),
	)
	return nil
}

// Compose applies the skills in order, stopping at the first error.
func (c *AgentConfig) Compose(list ...Skill) error {
	for _, s := range list {
		if err := c.Apply(s); err != nil {
			return err
		}
	}
	return nil
}

// Skills returns the names of the applied skills.
func (c *AgentConfig) Skills() []string {
	return c.applied
}

// FullPreamble returns the preamble with the context documents merged in.
func (c *AgentConfig) FullPreamble() string {
	return MergePreamble(c.Preamble, FormatDocuments(c.ContextDocuments))
}

// Register adds the tools to registry and returns the collisions.
func (c *AgentConfig) Register(registry *tools.Registry) ([]tools.CollisionWarning, error) {
	return registry.Register(c.Tools...)
}

// Registry returns a new registry with the tools.
func (c *AgentConfig) Registry(opts ...tools.RegistryOption) (*tools.Registry, error) {
	r := tools.NewRegistry(opts...)
	if _, err := c.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AssistantOptions returns the options that set the full preamble.
func (c *AgentConfig) AssistantOptions() []assistants.Option {
	return []assistants.Option{assistants.WithPreamble(c.FullPreamble())}
}
