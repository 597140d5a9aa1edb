package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// FetchConfig controls web_fetch defaults.
type FetchConfig struct {
	MaxChars int           `yaml:"max_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WebFetchTool fetches a URL and returns readable text content.
type WebFetchTool struct {
	config FetchConfig
	client *http.Client
}

type webFetchArgs struct {
	URL      string `json:"url" jsonschema:"required,description=URL to fetch (http/https only)"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"description=Maximum characters to return"`
}

// NewWebFetchTool creates the web_fetch tool with defaults applied.
func NewWebFetchTool(config FetchConfig) *WebFetchTool {
	if config.MaxChars <= 0 {
		config.MaxChars = 10000
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	return &WebFetchTool{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Category() string { return "web" }
func (t *WebFetchTool) Description() string {
	return "Fetch a URL and return its readable text content."
}
func (t *WebFetchTool) RequiresConfirmation() bool { return false }

func (t *WebFetchTool) Schema() json.RawMessage {
	return SchemaOf(webFetchArgs{})
}

var tagPattern = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]*>`)

// Execute fetches the URL. Network failures come back as error results so the
// supervisor can classify them.
func (t *WebFetchTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var params webFetchArgs
	if err := DecodeArgs(args, &params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	if params.URL == "" {
		return &Result{Content: "missing required parameter: url", IsError: true}, nil
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return &Result{Content: "only http and https URLs are supported", IsError: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return &Result{Content: fmt.Sprintf("invalid url: %v", err), IsError: true}, nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return &Result{Content: fmt.Sprintf("fetch failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &Result{Content: fmt.Sprintf("fetch failed: status %d", resp.StatusCode), IsError: true}, nil
	}

	limit := t.config.MaxChars
	if params.MaxChars > 0 && params.MaxChars < limit {
		limit = params.MaxChars
	}
	// Read at most 1MB regardless of the char limit.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Result{Content: fmt.Sprintf("read failed: %v", err), IsError: true}, nil
	}

	text := body
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text = tagPattern.ReplaceAll(body, []byte(" "))
	}
	content := strings.Join(strings.Fields(string(text)), " ")
	if len(content) > limit {
		// Back off to a rune boundary so the cut never splits a character.
		for limit > 0 && !utf8.RuneStart(content[limit]) {
			limit--
		}
		content = content[:limit] + "..."
	}
	return &Result{Content: content}, nil
}
