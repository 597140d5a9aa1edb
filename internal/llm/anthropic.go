package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/conductor-ai/conductor/internal/config"
)

// AnthropicProvider adapts the Anthropic messages API.
// Safe for concurrent use; each call creates an independent stream.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates the provider.
func NewAnthropicProvider(cfg config.AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete issues a non-streamed message request.
func (p *AnthropicProvider) Complete(ctx context.Context, model string, req *Request) (*Response, error) {
	params, err := p.buildParams(model, req)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classify(model, err)
	}

	out := &Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			toolUse := block.AsToolUse()
			args, merr := json.Marshal(toolUse.Input)
			if merr != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   toolUse.ID,
				Name: toolUse.Name,
				Args: args,
			})
		}
	}
	return out, nil
}

// Stream issues a streamed message request. Text deltas are forwarded as they
// arrive; tool-use inputs are accumulated and delivered on the final chunk.
func (p *AnthropicProvider) Stream(ctx context.Context, model string, req *Request) (<-chan *Chunk, error) {
	params, err := p.buildParams(model, req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Messages.NewStreaming(ctx, params)

	chunks := make(chan *Chunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		var calls []ToolCall
		var currentCall *ToolCall
		var inputJSON []byte

		flush := func() {
			if currentCall == nil {
				return
			}
			if len(inputJSON) == 0 {
				inputJSON = []byte("{}")
			}
			currentCall.Args = json.RawMessage(inputJSON)
			calls = append(calls, *currentCall)
			currentCall = nil
			inputJSON = nil
		}

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				start := event.AsContentBlockStart()
				if start.ContentBlock.Type == "tool_use" {
					toolUse := start.ContentBlock.AsToolUse()
					currentCall = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						select {
						case chunks <- &Chunk{Delta: delta.Text}:
						case <-ctx.Done():
							return
						}
					}
				case "input_json_delta":
					inputJSON = append(inputJSON, delta.PartialJSON...)
				}
			case "content_block_stop":
				flush()
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- &Chunk{Err: p.classify(model, err)}
			return
		}
		flush()
		chunks <- &Chunk{Done: true, ToolCalls: calls}
	}()
	return chunks, nil
}

func (p *AnthropicProvider) buildParams(model string, req *Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	for _, m := range req.Messages {
		var content []anthropic.ContentBlockParamUnion
		if m.ToolCallID != "" {
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		} else if m.Content != "" {
			content = append(content, anthropic.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			var input any
			if err := json.Unmarshal(tc.Args, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(content...))
		} else {
			// System turns inside history and tool results both travel as
			// user-role messages in the Anthropic API.
			params.Messages = append(params.Messages, anthropic.NewUserMessage(content...))
		}
	}

	for _, t := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return params, fmt.Errorf("anthropic: invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description)
		}
		params.Tools = append(params.Tools, toolParam)
	}
	return params, nil
}

func (p *AnthropicProvider) classify(model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return wrapProviderError(p.Name(), model, apiErr.StatusCode, fmt.Errorf("anthropic api: %w", err))
	}
	return wrapProviderError(p.Name(), model, 0, err)
}
