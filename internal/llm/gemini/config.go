package gemini

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	BaseURL     string
	Model       string
	Temperature float32
}

// Client calls the generateContent endpoint with the invoice inlined as base64.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient returns a Client. The call deadline comes from the caller's context.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Name identifies the capability in logs and metrics.
func (c *Client) Name() string { return "gemini" }
