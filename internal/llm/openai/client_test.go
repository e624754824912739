package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
)

func TestChat_ImageParts(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"lessons\":[]}  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", TextModel: "t", VisionModel: "v"}, nil)
	reply, err := c.Chat(context.Background(), llm.ChatRequest{
		Vision:  true,
		Timeout: time.Second,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "page", Images: []llm.Image{{MimeType: "image/png", Base64: "QUJD"}}},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != `{"lessons":[]}` {
		t.Fatalf("reply: got=%q", reply)
	}
	if body["model"] != "v" {
		t.Fatalf("model: got=%v", body["model"])
	}
	msgs := body["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,QUJD") {
		t.Fatalf("image url: got=%q", img)
	}
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.Chat(context.Background(), llm.ChatRequest{Timeout: time.Second})
	if !errors.Is(err, common.ErrUnitService) {
		t.Fatalf("want ErrUnitService, got %v", err)
	}
}

func TestProbes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"},{"id":"gpt-4o"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, VisionModel: "gpt-4o"}, nil)
	if !c.IsAvailable(context.Background()) || !c.HasVisionCapability(context.Background()) {
		t.Fatalf("probes should succeed")
	}
	other := NewClient(Config{BaseURL: srv.URL, VisionModel: "llava"}, nil)
	if other.HasVisionCapability(context.Background()) {
		t.Fatalf("HasVisionCapability: want=false")
	}
}

func TestChat_RequestOverrides(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, TextModel: "t", Temperature: 0.1, MaxTokens: 4096}, nil)
	if _, err := c.Chat(context.Background(), llm.ChatRequest{Timeout: time.Second}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if body["max_tokens"] != float64(4096) {
		t.Fatalf("config max_tokens: got=%v", body["max_tokens"])
	}

	temp := float32(0.5)
	if _, err := c.Chat(context.Background(), llm.ChatRequest{Timeout: time.Second, Temperature: &temp, MaxTokens: 32}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if body["temperature"] != 0.5 || body["max_tokens"] != float64(32) {
		t.Fatalf("overrides: temperature=%v max_tokens=%v", body["temperature"], body["max_tokens"])
	}
}
