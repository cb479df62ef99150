// Package tavily provides a web search tool backed by the Tavily API.
package tavily

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"
)

const ToolName = "web_search"

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" jsonschema:"title=Search Query,description=The query to search web." validate:"required"`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" jsonschema:"title=results,description=The results from a web search."`
	Answer  string                      `json:"answer,omitempty" jsonschema:"title=answer,description=The aggregated answer from a web search."`
}

func (r *SearchResult) GetContent() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}

// Tool is a tool that provides a web search functionality
type Tool struct {
	fn *tools.Func[SearchRequest, SearchResult]

	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)

// New returns the search tool. An empty apiKey falls back to TAVILY_API_KEY.
func New(apiKey string) (*Tool, error) {
	apiKey = values.StringsCoalesce(apiKey, os.Getenv("TAVILY_API_KEY"))
	if apiKey == "" {
		return nil, chatmodel.NewConfigurationError("TAVILY_API_KEY is not set")
	}

	t := &Tool{
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	fn, err := tools.NewFunc(ToolName, "A tool that provides a web search functionality.", t.search)
	if err != nil {
		return nil, err
	}
	t.fn = fn
	return t, nil
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return t.fn.Name()
}

func (t *Tool) Description() string {
	return t.fn.Description()
}

func (t *Tool) Parameters() *jsonschema.Schema {
	return t.fn.Parameters()
}

func (t *Tool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	return t.fn.Run(ctx, req)
}

func (t *Tool) Call(ctx context.Context, args chatmodel.Value) ([]chatmodel.Content, error) {
	return t.fn.Call(ctx, args)
}

func (t *Tool) search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchResp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to perform search"), chatmodel.ErrTransport)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}, nil
}
