// Package openai is the OpenAI chat-completions document-understanding capability.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/llm"
)

// Invoke sends the prompt and the PDF as one user message and returns the reply text.
func (c *Client) Invoke(ctx context.Context, doc entity.Document, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("openai API key not configured")
	}
	dataURL, err := llm.DocumentDataURL(doc)
	if err != nil {
		return "", err
	}

	rid := uuid.New().String()
	start := time.Now()
	log := common.LoggerFromContext(ctx, c.logger)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(dataURL),
					Filename: openai.String(doc.Filename),
				}),
			}),
		},
		Temperature: openai.Float(float64(c.cfg.Temperature)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error("llm.openai.request_failed",
			"http_req_id", rid,
			"model", c.cfg.Model,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}

	log.Info("llm.openai.response",
		"http_req_id", rid,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}
