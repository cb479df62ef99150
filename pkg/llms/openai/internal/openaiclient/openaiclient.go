package openaiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg/llms", "openai")

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultChatModel  = "gpt-5-mini"
	DefaultMaxTokens  = 2 * 16384
	DefaultMaxRetries = 2
)

// ErrEmptyResponse is returned when the OpenAI API returns an empty response.
var ErrEmptyResponse = errors.New("empty response")

type ProviderType string

const (
	ProviderOpenAI     ProviderType = "OPENAI"
	ProviderAzure      ProviderType = "AZURE"
	ProviderAzureAD    ProviderType = "AZURE_AD"
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config for the client.
type Config struct {
	Provider     ProviderType
	Model        string
	Token        string
	BaseURL      string
	Organization string
	// APIVersion is required when Provider is Azure or AzureAD.
	APIVersion string
	HTTPClient Doer
	MaxRetries int
}

// Client is a client for the OpenAI Chat Completions API.
type Client struct {
	Model    string
	Provider ProviderType

	baseURL string
	sdk     openai.Client
}

// New returns a new OpenAI client.
func New(cfg Config) *Client {
	c := &Client{
		Model:    cfg.Model,
		Provider: cfg.Provider,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	sdkOpts := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(5 * time.Minute),
	}
	if cfg.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(cfg.Organization))
	}

	if IsAzure(cfg.Provider) {
		// azure example url:
		// /openai/deployments/{model}/chat/completions?api-version={api_version}
		sdkOpts = append(sdkOpts,
			option.WithBaseURL(fmt.Sprintf("%s/openai/deployments/%s/", c.baseURL, cfg.Model)),
			option.WithQuery("api-version", cfg.APIVersion),
		)
		if cfg.Provider == ProviderAzureAD {
			sdkOpts = append(sdkOpts, option.WithHeader("Authorization", "Bearer "+cfg.Token))
		} else {
			sdkOpts = append(sdkOpts, option.WithHeader("api-key", cfg.Token))
		}
	} else {
		sdkOpts = append(sdkOpts,
			option.WithBaseURL(c.baseURL+"/"),
			option.WithAPIKey(cfg.Token),
		)
	}

	c.sdk = openai.NewClient(sdkOpts...)
	return c
}

func IsAzure(apiType ProviderType) bool {
	return apiType == ProviderAzure || apiType == ProviderAzureAD
}

func (c *Client) defaults(r *openai.ChatCompletionNewParams) {
	if r.Model == "" {
		if c.Model == "" {
			r.Model = DefaultChatModel
		} else {
			r.Model = c.Model
		}
	}
	if !r.MaxCompletionTokens.Valid() {
		r.MaxCompletionTokens = openai.Int(DefaultMaxTokens)
	}
}

// CreateChat creates chat request.
func (c *Client) CreateChat(ctx context.Context, r openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	c.defaults(&r)
	logger.ContextKV(ctx, xlog.DEBUG, "model", r.Model, "messages", len(r.Messages), "tools", len(r.Tools))

	resp, err := c.sdk.Chat.Completions.New(ctx, r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp, nil
}

// CreateStreamingChat creates chat request with SSE streaming.
// streamFunc is called for each content delta. The accumulated completion
// with usage stats is returned when the stream ends.
func (c *Client) CreateStreamingChat(
	ctx context.Context,
	r openai.ChatCompletionNewParams,
	streamFunc func(ctx context.Context, chunk []byte) error,
) (*openai.ChatCompletion, error) {
	c.defaults(&r)
	r.StreamOptions.IncludeUsage = openai.Bool(true)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, r)
	defer func() { _ = stream.Close() }()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := streamFunc(ctx, []byte(choice.Delta.Content)); err != nil {
				return nil, errors.Wrap(err, "streaming function error")
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(acc.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &acc.ChatCompletion, nil
}
