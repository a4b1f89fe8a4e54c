package providers

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// geminiAdapter speaks the generateContent schema: a contents list of
// role/parts entries, the API key in the query string, and the answer at
// candidates[0].content.parts[0].text.
type geminiAdapter struct {
	desc Descriptor
}

func NewGeminiAdapter() Adapter {
	return &geminiAdapter{
		desc: Descriptor{
			ID:       "gemini",
			Name:     "Google Gemini 2.0 Flash",
			Endpoint: "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-exp:generateContent",
			Model:    "gemini-2.0-flash-exp",
			Auth:     AuthQueryParam,
		},
	}
}

func (a *geminiAdapter) Descriptor() Descriptor { return a.desc }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiBody struct {
	Contents []geminiContent `json:"contents"`
}

func (a *geminiAdapter) BuildRequest(prompt string, prior []Message, apiKey string) (Request, error) {
	contents := make([]geminiContent, 0, len(prior)+1)
	for _, m := range prior {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}})

	body, err := json.Marshal(geminiBody{Contents: contents})
	if err != nil {
		return Request{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	return Request{
		URL: a.desc.Endpoint + "?key=" + url.QueryEscape(apiKey),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: body,
	}, nil
}

func (a *geminiAdapter) ParseResponse(raw []byte) (string, error) {
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text *string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	path := "candidates[0].content.parts[0].text"
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &FormatError{ProviderID: a.desc.ID, Path: path}
	}
	if len(parsed.Candidates) == 0 ||
		len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == nil {
		return "", &FormatError{ProviderID: a.desc.ID, Path: path}
	}
	return *parsed.Candidates[0].Content.Parts[0].Text, nil
}

func (a *geminiAdapter) ParseError(status int, raw []byte) string {
	return humanError(status, raw)
}
