package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
)

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Chat implements llm.ChatClient using a non-streaming /api/chat call.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	model := c.model(req.Vision)

	images := 0
	msgs := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		cm := chatMessage{Role: string(m.Role), Content: m.Content}
		for _, img := range m.Images {
			cm.Images = append(cm.Images, img.Base64)
			images++
		}
		msgs = append(msgs, cm)
	}

	body := chatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options:  map[string]any{"temperature": req.TemperatureOr(c.cfg.Temperature)},
	}
	if n := req.MaxTokensOr(c.cfg.MaxTokens); n > 0 {
		body.Options["num_predict"] = n
	}

	c.log.Info("llm.chat.start",
		"req_id", rid,
		"provider", "ollama",
		"model", model,
		"messages", len(msgs),
		"images", images,
		"timeout", req.Timeout,
	)

	raw, err := llm.CallWithTimeout(ctx, req.Timeout, func(callCtx context.Context) ([]byte, error) {
		b, _, err := llm.SendJSON(callCtx, c.httpClient, http.MethodPost, c.cfg.BaseURL+"/api/chat", body, nil, c.log)
		return b, err
	})
	if err != nil {
		c.log.Warn("llm.chat.error",
			"req_id", rid, "model", model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", common.NewUnitServiceError(http.StatusOK, "", fmt.Errorf("decode ollama response: %w", err))
	}
	if out.Error != "" {
		return "", common.NewUnitServiceError(http.StatusOK, out.Error, nil)
	}

	c.log.Info("llm.chat.ok",
		"req_id", rid,
		"model", model,
		"reply_len", len(out.Message.Content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Message.Content, nil
}

// IsAvailable probes /api/tags within the probe timeout.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.tags(ctx)
	if err != nil {
		c.log.Warn("llm.probe.unavailable", "provider", "ollama", "base_url", c.cfg.BaseURL, "error", err)
		return false
	}
	return true
}

// HasVisionCapability reports whether the configured vision model is installed.
func (c *Client) HasVisionCapability(ctx context.Context) bool {
	names, err := c.tags(ctx)
	if err != nil {
		return false
	}
	want := withDefaultTag(c.cfg.VisionModel)
	for _, n := range names {
		if withDefaultTag(n) == want {
			return true
		}
	}
	c.log.Warn("llm.probe.no_vision_model", "provider", "ollama", "model", c.cfg.VisionModel, "installed", len(names))
	return false
}

func (c *Client) Info() llm.ProviderInfo {
	return llm.ProviderInfo{
		Provider:    "ollama",
		BaseURL:     c.cfg.BaseURL,
		TextModel:   c.cfg.TextModel,
		VisionModel: c.cfg.VisionModel,
	}
}

func (c *Client) model(vision bool) string {
	if vision {
		return c.cfg.VisionModel
	}
	return c.cfg.TextModel
}

func (c *Client) tags(ctx context.Context) ([]string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	raw, _, err := llm.SendJSON(probeCtx, c.httpClient, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil, nil, c.log)
	if err != nil {
		return nil, err
	}
	var tr tagsResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		} else if m.Model != "" {
			names = append(names, m.Model)
		}
	}
	return names, nil
}

func withDefaultTag(name string) string {
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}
