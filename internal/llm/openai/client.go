package openai

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

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Chat implements llm.ChatClient using chat/completions. Images are sent as
// image_url parts carrying data URLs.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	model := c.cfg.TextModel
	if req.Vision {
		model = c.cfg.VisionModel
	}

	images := 0
	msgs := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if len(m.Images) == 0 {
			msgs = append(msgs, map[string]any{"role": string(m.Role), "content": m.Content})
			continue
		}
		parts := []map[string]any{{"type": "text", "text": m.Content}}
		for _, img := range m.Images {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": img.DataURL()},
			})
			images++
		}
		msgs = append(msgs, map[string]any{"role": string(m.Role), "content": parts})
	}

	body := map[string]any{
		"model":           model,
		"temperature":     req.TemperatureOr(c.cfg.Temperature),
		"response_format": map[string]any{"type": "json_object"},
		"messages":        msgs,
	}
	if n := req.MaxTokensOr(c.cfg.MaxTokens); n > 0 {
		body["max_tokens"] = n
	}

	c.log.Info("llm.chat.start",
		"req_id", rid,
		"provider", "openai",
		"model", model,
		"messages", len(msgs),
		"images", images,
		"timeout", req.Timeout,
	)

	raw, err := llm.CallWithTimeout(ctx, req.Timeout, func(callCtx context.Context) ([]byte, error) {
		b, _, err := llm.SendJSON(callCtx, c.httpClient, http.MethodPost, c.cfg.BaseURL+"/chat/completions", body, c.headers(), c.log)
		return b, err
	})
	if err != nil {
		c.log.Warn("llm.chat.error",
			"req_id", rid, "model", model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc chatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", common.NewUnitServiceError(http.StatusOK, "", fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		return "", common.NewUnitServiceError(http.StatusOK, "no choices in response", nil)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	c.log.Info("llm.chat.ok",
		"req_id", rid,
		"model", model,
		"reply_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (c *Client) IsAvailable(ctx context.Context) bool {
	if _, err := c.models(ctx); err != nil {
		c.log.Warn("llm.probe.unavailable", "provider", "openai", "base_url", c.cfg.BaseURL, "error", err)
		return false
	}
	return true
}

// HasVisionCapability reports whether the vision model is listed by the endpoint.
func (c *Client) HasVisionCapability(ctx context.Context) bool {
	ids, err := c.models(ctx)
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == c.cfg.VisionModel {
			return true
		}
	}
	c.log.Warn("llm.probe.no_vision_model", "provider", "openai", "model", c.cfg.VisionModel, "listed", len(ids))
	return false
}

func (c *Client) Info() llm.ProviderInfo {
	return llm.ProviderInfo{
		Provider:    "openai",
		BaseURL:     c.cfg.BaseURL,
		TextModel:   c.cfg.TextModel,
		VisionModel: c.cfg.VisionModel,
	}
}

func (c *Client) headers() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

func (c *Client) models(ctx context.Context) ([]string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	raw, _, err := llm.SendJSON(probeCtx, c.httpClient, http.MethodGet, c.cfg.BaseURL+"/models", nil, c.headers(), c.log)
	if err != nil {
		return nil, err
	}
	var ml modelList
	if err := json.Unmarshal(raw, &ml); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	ids := make([]string, 0, len(ml.Data))
	for _, m := range ml.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
