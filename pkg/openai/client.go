// Package openai is the OpenAI chat completions client used for the
// comprehensive video analysis. It requests JSON-object output so responses
// can be decoded strictly.
package openai

import (
	"context"
	"net/http"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/pkg/llm"
)

// Client calls OpenAI with JSON mode enabled.
type Client struct {
	chat         *llm.ChatClient
	premiumModel string
	fastModel    string
}

// NewClient creates a new OpenAI client.
func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		chat: &llm.ChatClient{
			Provider: "openai",
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			JSONMode: true,
			HTTPClient: &http.Client{
				Timeout: cfg.Timeout,
			},
		},
		premiumModel: cfg.PremiumModel,
		fastModel:    cfg.FastModel,
	}
}

// ModelFor returns the configured model for a tier.
func (c *Client) ModelFor(tier domain.ModelTier) string {
	if tier == domain.TierFast && c.fastModel != "" {
		return c.fastModel
	}
	return c.premiumModel
}

// Complete sends a chat completion.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	return c.chat.Complete(ctx, req)
}
