package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/assistants"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mcp"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/skills"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/cmd", "toolagent")

const (
	clientName    = "toolagent"
	clientVersion = "0.1.0"

	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type flags struct {
	Config  string
	LLM     string
	Prompt  string
	Format  string
	Verbose bool
	Debug   bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("toolagent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.Config, "config", "", "agent config file, .yaml or .toml")
	fs.StringVar(&f.LLM, "llm", os.Getenv("TOOLAGENT_LLM_CONFIG"), "LLM providers config file")
	fs.StringVar(&f.Prompt, "prompt", "", "prompt to run, read from stdin when empty")
	fs.StringVar(&f.Format, "format", formatText, "output format: text, json or yaml")
	fs.BoolVar(&f.Verbose, "verbose", false, "print the run events")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Mark(err, chatmodel.ErrConfiguration)
	}
	if f.Config == "" {
		return nil, chatmodel.NewConfigurationError("--config is required")
	}
	if f.LLM == "" {
		return nil, chatmodel.NewConfigurationError("--llm is required")
	}
	switch f.Format {
	case formatText, formatJSON, formatYAML:
	default:
		return nil, chatmodel.NewConfigurationError("unsupported format %q", f.Format)
	}
	if f.Prompt == "" && fs.NArg() > 0 {
		f.Prompt = strings.Join(fs.Args(), " ")
	}
	return f, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	xlog.SetFormatter(xlog.NewStringFormatter(stderr))
	if f.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}

	prompt := f.Prompt
	if prompt == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return errors.Wrap(err, "unable to read prompt")
		}
		prompt = strings.TrimSpace(string(b))
	}
	if prompt == "" {
		return chatmodel.NewConfigurationError("prompt is empty")
	}

	cfg, err := loadAgentConfig(f.Config)
	if err != nil {
		return err
	}

	factory, err := llmfactory.Load(f.LLM)
	if err != nil {
		return err
	}
	model, err := factory.AssistantModel(cfg.Name, cfg.Model)
	if err != nil {
		return err
	}

	a, closeFn, err := newAgent(ctx, cfg, model)
	if err != nil {
		return err
	}
	defer closeFn()

	var opts []assistants.Option
	var pad *callbacks.Scratchpad
	if f.Verbose {
		pad = callbacks.NewScratchpad(callbacks.ModeVerbose)
		opts = append(opts, assistants.WithCallback(callbacks.NewFanout(
			assistants.NewPrinterCallback(stderr),
			pad,
		)))
		ctx = pad.StartRun(ctx)
	}

	res, err := a.Run(ctx, prompt, opts...)
	if pad != nil {
		_, log := pad.EndRun(ctx)
		_, _ = stderr.Write(log)
	}
	if res != nil {
		printResult(stdout, f.Format, res)
	}
	return err
}

// summary is the machine readable output of a run.
type summary struct {
	RunID        string `json:"run_id" yaml:"run_id"`
	State        string `json:"state" yaml:"state"`
	Turns        int    `json:"turns" yaml:"turns"`
	InputTokens  int64  `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64  `json:"output_tokens" yaml:"output_tokens"`
	ToolCalls    int    `json:"tool_calls" yaml:"tool_calls"`
	ToolErrors   int    `json:"tool_errors" yaml:"tool_errors"`
	Text         string `json:"text,omitempty" yaml:"text,omitempty"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

func printResult(w io.Writer, format string, res *assistants.Result) {
	if format == formatText {
		fmt.Fprintf(w, "State: %s\n", res.State)
		fmt.Fprint(w, llmutils.EnsureEndsWithNewline(res.Text))
		return
	}

	s := summary{
		RunID:        res.RunID,
		State:        string(res.State),
		Turns:        res.Turns,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		ToolCalls:    len(res.ToolResults),
		Text:         res.Text,
	}
	for _, r := range res.ToolResults {
		if r.IsError() {
			s.ToolErrors++
		}
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}

	if format == formatJSON {
		fmt.Fprintln(w, llmutils.ToJSONIndent(s))
	} else {
		fmt.Fprint(w, llmutils.ToYAML(s))
	}
}

// newAgent connects the tool servers and composes the skills of cfg.
// The returned func closes the connections.
func newAgent(ctx context.Context, cfg *agentConfig, model llms.Model) (*assistants.Assistant, func(), error) {
	clients, err := connect(ctx, cfg.Servers)
	closeFn := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	catalog := tools.NewRegistry()
	for _, c := range clients {
		warnings, err := catalog.Register(c.Tools()...)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		for _, w := range warnings {
			logger.KV(xlog.WARNING,
				"status", "tool_collision",
				"server", c.Name(),
				"warning", w.String(),
			)
		}
	}

	registry := catalog
	agent := skills.NewAgentConfig(cfg.Preamble)
	if len(cfg.Skills) > 0 {
		for _, path := range cfg.skillPaths() {
			file, err := skills.Load(path)
			if err != nil {
				closeFn()
				return nil, nil, err
			}
			skill, err := file.Build(catalog, cfg.Vars)
			if err != nil {
				closeFn()
				return nil, nil, err
			}
			if err = agent.Apply(skill); err != nil {
				closeFn()
				return nil, nil, err
			}
		}
		// the agent sees only the tools its skills grant
		if registry, err = agent.Registry(); err != nil {
			closeFn()
			return nil, nil, err
		}
	}

	opts := append(cfg.options(), assistants.WithMaxTurns(cfg.MaxTurns))
	opts = append(opts, agent.AssistantOptions()...)

	logger.KV(xlog.INFO,
		"status", "agent_ready",
		"agent", cfg.Name,
		"model", model.GetName(),
		"servers", len(clients),
		"skills", agent.Skills(),
		"tools", registry.Names(),
	)
	return assistants.NewAssistant(model, registry, opts...), closeFn, nil
}

func connect(ctx context.Context, servers []mcp.TransportConfig) ([]*mcp.Client, error) {
	clients := make([]*mcp.Client, 0, len(servers))
	for _, s := range servers {
		c, err := mcp.Connect(ctx, s, mcp.WithClientInfo(clientName, clientVersion))
		if err != nil {
			return clients, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}
