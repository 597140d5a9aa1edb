package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchConfig controls web_search defaults.
type SearchConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WebSearchTool queries a Brave-compatible search API and returns a compact
// list of results.
type WebSearchTool struct {
	config SearchConfig
	client *http.Client
}

type webSearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results"`
}

type searchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// NewWebSearchTool creates the web_search tool with defaults applied.
func NewWebSearchTool(config SearchConfig) *WebSearchTool {
	if config.Endpoint == "" {
		config.Endpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &WebSearchTool{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Category() string { return "web" }
func (t *WebSearchTool) Description() string {
	return "Search the web and return titles, URLs and snippets."
}
func (t *WebSearchTool) RequiresConfirmation() bool { return false }

func (t *WebSearchTool) Schema() json.RawMessage {
	return SchemaOf(webSearchArgs{})
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params webSearchArgs
	if err := DecodeArgs(args, &params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return &Result{Content: "missing required parameter: query", IsError: true}, nil
	}
	if t.config.APIKey == "" {
		return &Result{Content: "web search is not configured: missing API key", IsError: true}, nil
	}

	limit := t.config.MaxResults
	if params.MaxResults > 0 && params.MaxResults < limit {
		limit = params.MaxResults
	}

	endpoint := fmt.Sprintf("%s?q=%s&count=%d", t.config.Endpoint, url.QueryEscape(params.Query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Result{Content: fmt.Sprintf("invalid request: %v", err), IsError: true}, nil
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.config.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return &Result{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &Result{Content: fmt.Sprintf("search failed: status %d", resp.StatusCode), IsError: true}, nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return &Result{Content: fmt.Sprintf("decode search response: %v", err), IsError: true}, nil
	}
	if len(parsed.Web.Results) == 0 {
		return &Result{Content: "no results found"}, nil
	}

	var sb strings.Builder
	for i, r := range parsed.Web.Results {
		if i >= limit {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Description)
	}
	return &Result{Content: strings.TrimRight(sb.String(), "\n")}, nil
}
