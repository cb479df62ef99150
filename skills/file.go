package skills

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

var validate = validator.New()

// File is the YAML definition of a skill. Tools are referenced by name,
// and the text of context documents is a template rendered with sprig functions.
type File struct {
	Name        string     `json:"name" yaml:"name" validate:"required"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Preamble    string     `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Tools       []string   `json:"tools,omitempty" yaml:"tools,omitempty"`
	Context     []Document `json:"context,omitempty" yaml:"context,omitempty" validate:"dive"`
}

// ToolResolver finds tools by name. tools.Registry implements it.
type ToolResolver interface {
	Resolve(name string) (tools.ITool, error)
}

// Parse decodes and validates a YAML skill definition.
func Parse(data []byte) (*File, error) {
	f := new(File)
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unable to parse skill"), chatmodel.ErrConfiguration)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads a skill definition, expanding environment variables.
func Load(path string) (*File, error) {
	f := new(File)
	if err := configloader.UnmarshalAndExpand(path, f); err != nil {
		return nil, errors.Mark(errors.WithMessagef(err, "unable to load skill %s", path), chatmodel.ErrConfiguration)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate returns a configuration error if the definition is invalid.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid skill"), chatmodel.ErrConfiguration)
	}
	return nil
}

// Build resolves the tools and renders the context documents with data.
func (f *File) Build(resolver ToolResolver, data any) (*Simple, error) {
	opts := []SimpleOption{
		WithDescription(f.Description),
		WithPreamble(f.Preamble),
	}

	for _, name := range f.Tools {
		if resolver == nil {
			return nil, chatmodel.NewConfigurationError("skill %s: no tools available to resolve %q", f.Name, name)
		}
		t, err := resolver.Resolve(name)
		if err != nil {
			return nil, errors.Mark(errors.WithMessagef(err, "skill %s", f.Name), chatmodel.ErrConfiguration)
		}
		opts = append(opts, WithTools(t))
	}

	for _, doc := range f.Context {
		text, err := Render(doc.ID, doc.Text, data)
		if err != nil {
			return nil, errors.WithMessagef(err, "skill %s", f.Name)
		}
		opts = append(opts, WithContextDocument(doc.ID, text))
	}

	return NewSimple(f.Name, opts...)
}

// Render executes text as a template with sprig functions.
// Missing keys are errors.
func Render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "invalid template %s", name), chatmodel.ErrConfiguration)
	}
	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, data); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "unable to render %s", name), chatmodel.ErrConfiguration)
	}
	return buf.String(), nil
}
