// Package anthropic implements model.Client with the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ochoaughini/Cognition-Lattice/model"
)

// Options configures the Anthropic client.
type Options struct {
	Model          anthropic.Model
	Temperature    float64
	MaxTokens      int64
	APIKey         string
	BaseURL        string
	RequestOptions []option.RequestOption
}

// Client adapts the Messages API to model.Client.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// NewClient creates a client using the official SDK.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption(nil), opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: string(c.opts.Model), Provider: "anthropic"}
}

// Predict sends the prompt as a single user message and joins the text
// blocks of the reply.
func (c *Client) Predict(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	in, err := model.ParseTextInput(inputs)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(in.Prompt))},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = in.MaxTokens
	}
	if in.Temperature != nil {
		params.Temperature = anthropic.Float(*in.Temperature)
	}
	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return map[string]any{
		model.OutputText:         text.String(),
		model.OutputModel:        string(resp.Model),
		model.OutputFinishReason: string(resp.StopReason),
		model.OutputUsage: map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}
