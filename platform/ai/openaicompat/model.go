// Package openaicompat adapts any OpenAI-compatible chat completion API to
// the ADK model.LLM interface.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ChatModel talks to an OpenAI-compatible /chat/completions endpoint.
type ChatModel struct {
	config Config
	client *http.Client
}

func NewModel(cfg Config) *ChatModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &ChatModel{
		config: cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *ChatModel) Name() string {
	return m.config.Model
}

// GenerateContent adapts ADK requests to the chat completion wire format.
// Streaming is not supported; the full completion is yielded once.
func (m *ChatModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error interface{} `json:"error"`
}

func (m *ChatModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	payload := map[string]interface{}{
		"model":    m.config.Model,
		"messages": m.convertMessages(req),
	}
	if req.Config != nil && req.Config.Temperature != nil {
		payload["temperature"] = float64(*req.Config.Temperature)
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("completion api error: %v", result.Error)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("completion api error: empty choices")
	}

	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{genai.NewPartFromText(result.Choices[0].Message.Content)},
		},
	}, nil
}

func (m *ChatModel) convertMessages(req *model.LLMRequest) []chatMessage {
	messages := make([]chatMessage, 0, len(req.Contents)+1)

	if req.Config != nil && req.Config.SystemInstruction != nil {
		if text := contentText(req.Config.SystemInstruction); text != "" {
			messages = append(messages, chatMessage{Role: "system", Content: text})
		}
	}

	for _, content := range req.Contents {
		if content == nil {
			continue
		}
		text := contentText(content)
		if text == "" {
			continue
		}
		role := "user"
		if content.Role == genai.RoleModel {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: text})
	}
	return messages
}

func contentText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || strings.TrimSpace(part.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}
