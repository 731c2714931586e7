// Package openai implements model.Client with the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ochoaughini/Cognition-Lattice/model"
)

// Options configure the OpenAI client.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	RequestOptions      []option.RequestOption
}

// Client adapts Chat Completions to model.Client.
type Client struct {
	client *openai.Client
	opts   Options
}

// NewClient creates a client backed by the official SDK. Without an APIKey
// the SDK reads OPENAI_API_KEY.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	reqOpts := append([]option.RequestOption(nil), opts.RequestOptions...)
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "openai"}
}

// Predict sends the prompt as a single user turn.
func (c *Client) Predict(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	in, err := model.ParseTextInput(inputs)
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if in.System != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	messages = append(messages, openai.UserMessage(in.Prompt))

	temperature := c.opts.Temperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}
	maxTokens := c.opts.MaxCompletionTokens
	if in.MaxTokens > 0 {
		maxTokens = in.MaxTokens
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}
	choice := resp.Choices[0]

	return map[string]any{
		model.OutputText:         choice.Message.Content,
		model.OutputModel:        resp.Model,
		model.OutputFinishReason: choice.FinishReason,
		model.OutputUsage: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}, nil
}
