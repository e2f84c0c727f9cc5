package openai

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultModel = "gpt-4o-mini"

// Config for the OpenAI client.
type Config struct {
	APIKey      string // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string // empty keeps the SDK default
	Model       string
	Temperature float32
}

// Client sends the invoice as a file content part of a chat completion.
type Client struct {
	cfg    Config
	sdk    openai.Client
	logger *slog.Logger
}

// NewClient returns a Client. SDK retries are disabled: one call per document.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Client{cfg: cfg, sdk: openai.NewClient(opts...), logger: logger}
}

// Name identifies the capability in logs and metrics.
func (c *Client) Name() string { return "openai" }
