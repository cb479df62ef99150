// Package skills bundles tools, a preamble fragment and context documents
// into reusable capabilities that are composed into an agent before a run.
package skills

import (
	"fmt"
	"strings"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "skills")

// PreambleSeparator joins preamble fragments.
const PreambleSeparator = chatmodel.PreambleSeparator

// Document is a static context document added to the preamble.
type Document struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Text string `json:"text" yaml:"text"`
}

func (d Document) String() string {
	return fmt.Sprintf("<file id: %s>\n%s\n</file>\n", d.ID, d.Text)
}

// Components are the parts a skill contributes to an agent.
type Components struct {
	Tools            []tools.ITool
	Preamble         string
	ContextDocuments []Document
}

// Skill is a reusable agent capability.
type Skill interface {
	Name() string
	Description() string
	Components() (*Components, error)
}

// MergePreamble appends addition to existing after PreambleSeparator,
// or returns addition when existing is empty.
func MergePreamble(existing, addition string) string {
	if addition == "" {
		return existing
	}
	if existing == "" {
		return addition
	}
	return existing + PreambleSeparator + addition
}

// FormatDocuments renders documents as one preamble fragment.
func FormatDocuments(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<attachments>\n")
	for _, d := range docs {
		b.WriteString(d.String())
	}
	b.WriteString("</attachments>\n")
	return b.String()
}

// SimpleOption configures a Simple skill.
type SimpleOption func(*Simple)

func WithDescription(description string) SimpleOption {
	return func(s *Simple) {
		s.description = description
	}
}

func WithPreamble(preamble string) SimpleOption {
	return func(s *Simple) {
		s.preamble = preamble
	}
}

func WithTools(list ...tools.ITool) SimpleOption {
	return func(s *Simple) {
		s.tools = append(s.tools, list...)
	}
}

func WithContextDocument(id, text string) SimpleOption {
	return func(s *Simple) {
		s.docs = append(s.docs, Document{ID: id, Text: text})
	}
}

func WithContextDocuments(docs ...Document) SimpleOption {
	return func(s *Simple) {
		s.docs = append(s.docs, docs...)
	}
}

// Simple is a Skill built from options.
type Simple struct {
	name        string
	description string
	preamble    string
	tools       []tools.ITool
	docs        []Document
}

var _ Skill = (*Simple)(nil)

// NewSimple returns a Simple skill. The name is required.
func NewSimple(name string, opts ...SimpleOption) (*Simple, error) {
	if name == "" {
		return nil, chatmodel.NewConfigurationError("skill name is required")
	}
	s := &Simple{name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Simple) Name() string {
	return s.name
}

func (s *Simple) Description() string {
	return s.description
}

// Components returns copies of the skill's parts.
func (s *Simple) Components() (*Components, error) {
	return &Components{
		Tools:            append([]tools.ITool(nil), s.tools...),
		Preamble:         s.preamble,
		ContextDocuments: append([]Document(nil), s.docs...),
	}, nil
}
