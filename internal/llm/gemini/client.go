// Package gemini is the Google Gemini document-understanding capability.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/llm"
)

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float32 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Invoke sends the prompt and the PDF in one generateContent call and returns the reply text.
func (c *Client) Invoke(ctx context.Context, doc entity.Document, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("gemini API key not configured")
	}
	data, err := llm.Base64Document(doc)
	if err != nil {
		return "", err
	}

	body := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: constants.MediaTypePDF, Data: data}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:      c.cfg.Temperature,
			ResponseMimeType: "application/json",
		},
	}

	url := c.cfg.BaseURL + "/models/" + c.cfg.Model + ":generateContent"
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, url, body, headers, c.logger)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if r := resp.PromptFeedback.BlockReason; r != "" {
		return "", fmt.Errorf("gemini blocked the prompt: %s", r)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in gemini response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty gemini reply (finish reason %q)", resp.Candidates[0].FinishReason)
	}
	return b.String(), nil
}
