package assistants

import (
	"context"
	"time"

	"github.com/effective-security/toolagent/pkg/llms"
)

const (
	// DefaultMaxTurns is the turn budget when none is configured.
	DefaultMaxTurns = 10
	// DefaultName is the agent name reported in logs and metrics.
	DefaultName = "assistant"
)

// Option is a function that can be used to modify the behavior of the Agent Config.
type Option func(*Config)

type Config struct {
	// Name of the agent, used in logs and metrics.
	Name string
	// Description of the agent, used when it is exposed as a tool.
	Description string
	// Preamble is the system preamble of the conversation.
	Preamble string

	// MaxTurns is the number of model rounds allowed in one run.
	MaxTurns int
	// ToolTimeout bounds each tool call, zero means no deadline.
	// A tool call that exceeds it produces a timeout result.
	ToolTimeout time.Duration
	// ModelTimeout bounds each model call, zero means no deadline.
	// A model call that exceeds it fails the run.
	ModelTimeout time.Duration
	// Sequential dispatches the tool calls of one round one at a time.
	Sequential bool

	// CallbackHandler is notified of run, model and tool events.
	CallbackHandler Callback

	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// StopWords is a list of words to stop on to use in an LLM call.
	StopWords    []string
	stopWordsSet bool

	// TopK is the number of tokens to consider for top-k sampling in an LLM call.
	TopK    int
	topkSet bool

	// TopP is the cumulative probability for top-p sampling in an LLM call.
	TopP    float64
	toppSet bool

	// Seed is a seed for deterministic sampling in an LLM call.
	Seed    int
	seedSet bool

	// ToolChoice is "auto" (the default), "none", "required", or a tool name.
	ToolChoice    string
	toolChoiceSet bool

	// StreamingFunc is a function to be called for each chunk of a streaming response.
	// Return an error to stop streaming early.
	StreamingFunc func(ctx context.Context, chunk []byte) error
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:     DefaultName,
		MaxTurns: DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with opts applied.
func (c *Config) Apply(opts ...Option) *Config {
	cp := *c
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// WithName sets the agent name.
func WithName(name string) Option {
	return func(o *Config) {
		o.Name = name
	}
}

// WithDescription sets the agent description.
func WithDescription(description string) Option {
	return func(o *Config) {
		o.Description = description
	}
}

// WithPreamble sets the system preamble.
func WithPreamble(preamble string) Option {
	return func(o *Config) {
		o.Preamble = preamble
	}
}

// WithMaxTurns sets the turn budget.
func WithMaxTurns(maxTurns int) Option {
	return func(o *Config) {
		o.MaxTurns = maxTurns
	}
}

// WithToolTimeout sets the deadline of each tool call.
func WithToolTimeout(timeout time.Duration) Option {
	return func(o *Config) {
		o.ToolTimeout = timeout
	}
}

// WithModelTimeout sets the deadline of each model call.
func WithModelTimeout(timeout time.Duration) Option {
	return func(o *Config) {
		o.ModelTimeout = timeout
	}
}

// WithSequentialDispatch runs the tool calls of a round one after another.
func WithSequentialDispatch(sequential bool) Option {
	return func(o *Config) {
		o.Sequential = sequential
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = true
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithStreamingFunc is an option for LLM.Call that allows streaming responses.
func WithStreamingFunc(streamingFunc func(ctx context.Context, chunk []byte) error) Option {
	return func(o *Config) {
		o.StreamingFunc = streamingFunc
	}
}

// WithTopK will add an option to use top-k sampling for LLM.Call.
func WithTopK(topK int) Option {
	return func(o *Config) {
		o.TopK = topK
		o.topkSet = true
	}
}

// WithTopP	will add an option to use top-p sampling for LLM.Call.
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = topP
		o.toppSet = true
	}
}

// WithSeed will add an option to use deterministic sampling for LLM.Call.
func WithSeed(seed int) Option {
	return func(o *Config) {
		o.Seed = seed
		o.seedSet = true
	}
}

// WithStopWords is an option for setting the stop words for LLM.Call.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
		o.stopWordsSet = true
	}
}

// WithToolChoice is an option for LLM.Call.
func WithToolChoice(choice string) Option {
	return func(o *Config) {
		o.ToolChoice = choice
		o.toolChoiceSet = true
	}
}

func (c *Config) GetCallOptions(options ...llms.CallOption) []llms.CallOption {
	var callOptions []llms.CallOption
	if c.modelSet {
		callOptions = append(callOptions, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		callOptions = append(callOptions, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		callOptions = append(callOptions, llms.WithTemperature(c.Temperature))
	}
	if c.stopWordsSet {
		callOptions = append(callOptions, llms.WithStopWords(c.StopWords))
	}
	if c.topkSet {
		callOptions = append(callOptions, llms.WithTopK(c.TopK))
	}
	if c.toppSet {
		callOptions = append(callOptions, llms.WithTopP(c.TopP))
	}
	if c.seedSet {
		callOptions = append(callOptions, llms.WithSeed(c.Seed))
	}
	if c.toolChoiceSet {
		callOptions = append(callOptions, llms.WithToolChoice(c.ToolChoice))
	}
	if c.StreamingFunc != nil {
		callOptions = append(callOptions, llms.WithStreamingFunc(c.StreamingFunc))
	}
	return append(callOptions, options...)
}
