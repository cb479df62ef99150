package bedrockclient

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg/llms", "bedrock")

// ProviderAnthropic is the only model family with tool use support here.
const ProviderAnthropic = "anthropic"

// Client is a Bedrock client.
type Client struct {
	client *bedrockruntime.Client
}

func getProvider(modelID string) string {
	// Handle Inference Profiles (e.g., "us.anthropic.claude-3-5-sonnet-20241022-v2:0")
	// and direct model IDs (e.g., "anthropic.claude-3-sonnet-20240229-v1:0")
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 {
		// region prefix, the provider is the second part
		if len(parts[0]) == 2 && strings.ToLower(parts[0]) == parts[0] {
			return parts[1]
		}
		return parts[0]
	}
	return parts[0]
}

// IsSupported returns true if the model family of modelID is supported.
func IsSupported(modelID string) bool {
	return getProvider(modelID) == ProviderAnthropic
}

// NewClient creates a new Bedrock client.
func NewClient(client *bedrockruntime.Client) *Client {
	return &Client{
		client: client,
	}
}

// CreateCompletion sends the conversation to the model and returns the completion.
func (c *Client) CreateCompletion(ctx context.Context,
	modelID string,
	conv *chatmodel.Conversation,
	tools []chatmodel.ToolDefinition,
	options llms.CallOptions,
) (*llms.Completion, error) {
	switch provider := getProvider(modelID); provider {
	case ProviderAnthropic:
		return createAnthropicCompletion(ctx, c.client, modelID, conv, tools, options)
	default:
		return nil, errors.Newf("bedrock: unsupported provider: %s", provider)
	}
}

func getMaxTokens(maxTokens, defaultValue int) int {
	if maxTokens <= 0 {
		return defaultValue
	}
	return maxTokens
}
