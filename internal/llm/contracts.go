package llm

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is a base64-encoded page raster attached to a user message.
type Image struct {
	MimeType string
	Base64   string
}

func (i Image) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Base64
}

type Message struct {
	Role    Role
	Content string
	Images  []Image
}

// ChatRequest is one non-streaming completion. Vision selects the vision
// model; Timeout bounds this call only. Temperature and MaxTokens override
// the client's configured values when set.
type ChatRequest struct {
	Messages    []Message
	Vision      bool
	Timeout     time.Duration
	Temperature *float32
	MaxTokens   int
}

// TemperatureOr returns the request temperature, or def when unset.
func (r ChatRequest) TemperatureOr(def float32) float32 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return def
}

// MaxTokensOr returns the request token cap, or def when unset.
func (r ChatRequest) MaxTokensOr(def int) int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return def
}

type ProviderInfo struct {
	Provider    string
	BaseURL     string
	TextModel   string
	VisionModel string
}

// ChatClient is the inference service contract the pipeline depends on.
// Chat failures are *common.UnitTimeoutError or *common.UnitServiceError
// unless the caller's context itself was cancelled.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	IsAvailable(ctx context.Context) bool
	HasVisionCapability(ctx context.Context) bool
	Info() ProviderInfo
}
