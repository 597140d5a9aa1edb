package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/conductor-ai/conductor/internal/config"
)

const defaultMaxTokens = 4096

// OpenAIProvider adapts the OpenAI-compatible chat completions API.
// Safe for concurrent use; each call creates an independent stream.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates the provider. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete issues a non-streamed chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, model string, req *Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(model, req, false))
	if err != nil {
		return nil, p.classify(model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, wrapProviderError(p.Name(), model, 0, errors.New("empty completion response"))
	}
	choice := resp.Choices[0].Message
	out := &Response{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// Stream issues a streamed chat completion. Tool calls are accumulated across
// deltas and delivered complete on the final chunk.
func (p *OpenAIProvider) Stream(ctx context.Context, model string, req *Request) (<-chan *Chunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(model, req, true))
	if err != nil {
		return nil, p.classify(model, err)
	}

	chunks := make(chan *Chunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		type partialCall struct {
			id   string
			name string
			args []byte
		}
		var calls []*partialCall

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				final := &Chunk{Done: true}
				for _, c := range calls {
					final.ToolCalls = append(final.ToolCalls, ToolCall{
						ID:   c.id,
						Name: c.name,
						Args: json.RawMessage(c.args),
					})
				}
				chunks <- final
				return
			}
			if err != nil {
				chunks <- &Chunk{Err: p.classify(model, err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				select {
				case chunks <- &Chunk{Delta: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				for len(calls) <= idx {
					calls = append(calls, &partialCall{})
				}
				call := calls[idx]
				if tc.ID != "" {
					call.id = tc.ID
				}
				if tc.Function.Name != "" {
					call.name = tc.Function.Name
				}
				call.args = append(call.args, tc.Function.Arguments...)
			}
		}
	}()
	return chunks, nil
}

func (p *OpenAIProvider) buildRequest(model string, req *Request, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (p *OpenAIProvider) classify(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return wrapProviderError(p.Name(), model, apiErr.HTTPStatusCode, fmt.Errorf("openai api: %w", err))
	}
	return wrapProviderError(p.Name(), model, 0, err)
}
