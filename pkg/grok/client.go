package grok

import (
	"context"
	"net/http"
	"strings"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/pkg/llm"
)

// DefaultVisionModel is used when a request carries images but the configured
// model cannot see.
const DefaultVisionModel = "grok-2-vision-1212"

// Client generates hooks and captions with xAI Grok. Grok has no strict JSON
// mode here, so callers extract JSON from free text.
type Client struct {
	chat         *llm.ChatClient
	premiumModel string
	fastModel    string
}

// NewClient creates a new Grok API client.
func NewClient(cfg config.GrokConfig) *Client {
	return &Client{
		chat: &llm.ChatClient{
			Provider: "grok",
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
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

// Complete sends a chat completion. Requests with images are routed to a
// vision model.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if len(req.Images) > 0 && !strings.Contains(req.Model, "vision") {
		req.Model = DefaultVisionModel
	}
	return c.chat.Complete(ctx, req)
}
