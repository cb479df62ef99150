package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Anthropic models available on Bedrock.
const (
	ModelAnthropicClaudeV35Sonnet = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	ModelAnthropicClaudeV37Sonnet = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	ModelAnthropicClaudeV4Sonnet  = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	ModelAnthropicClaudeV35Haiku  = "anthropic.claude-3-5-haiku-20241022-v1:0"
)

type options struct {
	modelID string
	region  string
	client  *bedrockruntime.Client
}

// Option is an option for the Bedrock LLM.
type Option func(*options)

// WithModel sets the model ID, default is ModelAnthropicClaudeV35Sonnet.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region used when the client is loaded
// from the default configuration.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithClient sets the Bedrock runtime client.
// If not set, the client is created from the default AWS configuration.
func WithClient(client *bedrockruntime.Client) Option {
	return func(o *options) {
		o.client = client
	}
}
