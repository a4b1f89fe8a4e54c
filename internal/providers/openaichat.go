package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// chatCompletionsAdapter covers providers speaking the OpenAI-style
// chat-completions schema: a role/content message list, bearer auth and the
// answer at choices[0].message.content.
type chatCompletionsAdapter struct {
	desc         Descriptor
	systemPrompt string
	temperature  *float64
	topP         *float64
	maxTokens    *int
}

// NewZaiAdapter talks to Z.AI GLM chat completions.
func NewZaiAdapter() Adapter {
	temp, topP := 0.7, 0.8
	return &chatCompletionsAdapter{
		desc: Descriptor{
			ID:       "zai",
			Name:     "Z.AI GLM-4.5-Flash",
			Endpoint: "https://api.z.ai/api/paas/v4/chat/completions",
			Model:    "glm-4.5-flash",
			Auth:     AuthBearerHeader,
		},
		systemPrompt: "You are a helpful AI assistant.",
		temperature:  &temp,
		topP:         &topP,
	}
}

// NewMistralAdapter talks to Mistral chat completions.
func NewMistralAdapter() Adapter {
	maxTokens := 1000
	return &chatCompletionsAdapter{
		desc: Descriptor{
			ID:       "mistral",
			Name:     "Mistral AI",
			Endpoint: "https://api.mistral.ai/v1/chat/completions",
			Model:    "mistral-large-latest",
			Auth:     AuthBearerHeader,
		},
		maxTokens: &maxTokens,
	}
}

func (a *chatCompletionsAdapter) Descriptor() Descriptor { return a.desc }

type chatCompletionsBody struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

func (a *chatCompletionsAdapter) BuildRequest(prompt string, prior []Message, apiKey string) (Request, error) {
	messages := make([]Message, 0, len(prior)+2)
	if a.systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: a.systemPrompt})
	}
	messages = append(messages, prior...)
	messages = append(messages, Message{Role: "user", Content: prompt})

	body, err := json.Marshal(chatCompletionsBody{
		Model:       a.desc.Model,
		Messages:    messages,
		Temperature: a.temperature,
		TopP:        a.topP,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return Request{}, fmt.Errorf("marshal %s request: %w", a.desc.ID, err)
	}

	return Request{
		URL: a.desc.Endpoint,
		Headers: map[string]string{
			"Authorization": "Bearer " + apiKey,
			"Content-Type":  "application/json",
		},
		Body: body,
	}, nil
}

func (a *chatCompletionsAdapter) ParseResponse(raw []byte) (string, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &FormatError{ProviderID: a.desc.ID, Path: "choices[0].message.content"}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return "", &FormatError{ProviderID: a.desc.ID, Path: "choices[0].message.content"}
	}
	return *parsed.Choices[0].Message.Content, nil
}

func (a *chatCompletionsAdapter) ParseError(status int, raw []byte) string {
	return humanError(status, raw)
}

// humanError renders an upstream failure for end users. It prefers the
// error.message field most providers return, falling back to the raw body.
func humanError(status int, raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("Error %d: %s", status, parsed.Error.Message)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		body = "empty response body"
	}
	return fmt.Sprintf("Error %d: %s", status, body)
}
