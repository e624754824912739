// Package provider builds the configured inference client.
package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/llm/ollama"
	"github.com/joseph-ayodele/exam-importer/internal/llm/openai"
)

const (
	Ollama = "ollama"
	OpenAI = "openai"
)

// New returns the llm.ChatClient named by cfg.Provider.
func New(cfg common.InferenceConfig, logger *slog.Logger) (llm.ChatClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", Ollama:
		return ollama.NewClient(ollama.Config{
			BaseURL:      cfg.BaseURL,
			TextModel:    cfg.TextModel,
			VisionModel:  cfg.VisionModel,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			ProbeTimeout: cfg.ProbeTimeout,
		}, logger), nil
	case OpenAI:
		return openai.NewClient(openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			TextModel:    cfg.TextModel,
			VisionModel:  cfg.VisionModel,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			ProbeTimeout: cfg.ProbeTimeout,
		}, logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown inference provider %q", cfg.Provider), common.ErrInvalidInput)
	}
}
