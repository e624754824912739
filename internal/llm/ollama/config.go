package ollama

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config for the Ollama client.
type Config struct {
	BaseURL      string // default http://localhost:11434
	TextModel    string
	VisionModel  string
	Temperature  float32
	MaxTokens    int           // num_predict
	ProbeTimeout time.Duration // bounds availability checks
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TextModel == "" {
		cfg.TextModel = "llama3.1:8b"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "llama3.2-vision:11b"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        logger,
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}
