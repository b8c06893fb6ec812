package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ProviderGemini names the Gemini translator in stored translation metadata.
const ProviderGemini = "gemini"

type GeminiTranslator struct {
	client *genai.Client
	model  string
}

type translationResult struct {
	Translation string `json:"translation"`
}

// NewGeminiTranslator returns nil without an API key, which callers treat as
// translation disabled.
func NewGeminiTranslator(ctx context.Context, apiKey, modelID string) (*GeminiTranslator, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiTranslator{client: client, model: modelID}, nil
}

func (g *GeminiTranslator) Name() string { return ProviderGemini }

func (g *GeminiTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following shopping deal text from %s to %s.
Keep prices, product names, model numbers, store names and voucher codes unchanged.
Return only the translation in the JSON schema.

Text:
%s`, from, to, text)

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"translation": {
					Type:        genai.TypeString,
					Description: "The translated text.",
				},
			},
			Required: []string{"translation"},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return parseResponse(resp.Text())
}

func parseResponse(raw string) (string, error) {
	// Clean up potential markdown formatting just in case
	jsonStr := strings.TrimSpace(raw)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")
	if strings.TrimSpace(jsonStr) == "" {
		return "", fmt.Errorf("empty response from gemini")
	}

	var result translationResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return "", fmt.Errorf("failed to parse gemini response: %w", err)
	}
	if strings.TrimSpace(result.Translation) == "" {
		return "", fmt.Errorf("gemini returned an empty translation")
	}
	return result.Translation, nil
}
