package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

func NewClaudeClient(apiKey string, model string, baseURL string) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) > 0 && resp.Content[0].Text != nil {
		return *resp.Content[0].Text, nil
	}
	return "", fmt.Errorf("no response content")
}

func (c *ClaudeClient) Invoke(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens: 4096,
		Tools: []anthropic.ToolDefinition{
			{
				Name:        reportToolName,
				Description: "Report the structured findings for this request.",
				InputSchema: schema,
			},
		},
		ToolChoice: &anthropic.ToolChoice{Type: "tool", Name: reportToolName},
	})
	if err != nil {
		return nil, err
	}

	for _, content := range resp.Content {
		if content.Type == anthropic.MessagesContentTypeToolUse && content.MessageContentToolUse != nil {
			return content.MessageContentToolUse.Input, nil
		}
	}
	for _, content := range resp.Content {
		if content.Text != nil {
			return ExtractJSON(*content.Text)
		}
	}
	return nil, fmt.Errorf("no tool use in response")
}
