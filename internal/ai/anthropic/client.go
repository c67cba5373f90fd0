// Package anthropic adapts the Anthropic Messages API to audit.TextAnalyzer.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4000
	defaultTimeout   = 120 * time.Second
)

// Config configures the client. An empty APIKey yields a client whose every call
// reports audit.ErrAnalyzerUnavailable.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Timeout   time.Duration
}

// Client implements audit.TextAnalyzer.
type Client struct {
	cfg    Config
	api    *sdk.Client
	logger *zap.Logger
}

// New builds a Client. The SDK's own retries are disabled; a failed call costs one page's review.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{cfg: cfg, logger: logger}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return c
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	api := sdk.NewClient(opts...)
	c.api = &api
	return c
}

// Available reports whether a credential was configured.
func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

// Generate sends prompt as a single user message and returns the concatenated text blocks.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		return "", audit.ErrAnalyzerUnavailable
	}
	msg, err := c.api.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			c.logger.Warn("anthropic request rejected",
				zap.Int("status", apiErr.StatusCode),
				zap.String("model", c.cfg.Model),
			)
		}
		return "", fmt.Errorf("create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	c.logger.Debug("anthropic reply",
		zap.String("model", c.cfg.Model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return b.String(), nil
}
