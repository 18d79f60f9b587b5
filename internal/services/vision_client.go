package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"labelens-backend/config"
	"labelens-backend/internal/utils"
)

const defaultAnalysisPrompt = "Extract every printed field from this package label " +
	"(product name, net weight, ingredients, allergens, lot code, dates, addresses) " +
	"and return them as JSON."

// HTTPVisionClient talks to an OpenAI-compatible chat completions endpoint
// with an image attachment. Cancellation comes from the caller's context; the
// orchestrator owns the deadline.
type HTTPVisionClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewVisionClient builds the production client from configuration.
func NewVisionClient(cfg *config.Config) *HTTPVisionClient {
	return &HTTPVisionClient{
		BaseURL: cfg.VisionAPIURL,
		APIKey:  cfg.VisionAPIKey,
		Model:   cfg.VisionModel,
		// Transport-level cap well above the orchestrator's per-attempt
		// deadline, so the context is always the one that fires.
		HTTPClient: utils.NewHTTPClient(5 * time.Minute),
	}
}

type visionAPIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Analyze submits one label image for analysis and returns the payload with
// the token usage the billing pipeline needs.
func (c *HTTPVisionClient) Analyze(ctx context.Context, imageURL, prompt string) (*VisionResult, error) {
	if prompt == "" {
		prompt = defaultAnalysisPrompt
	}

	body := map[string]interface{}{
		"model": c.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
				},
			},
		},
	}

	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	client := c.HTTPClient
	if client == nil {
		client = utils.NewHTTPClient(5 * time.Minute)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Surface the deadline so the orchestrator sees a timeout, not a
		// generic transport error.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vision api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp visionAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, errors.New("vision api returned no choices")
	}

	model := apiResp.Model
	if model == "" {
		model = c.Model
	}

	return &VisionResult{
		Payload: map[string]interface{}{
			"content": apiResp.Choices[0].Message.Content,
		},
		Usage: TokenUsage{
			Model:            model,
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
		},
	}, nil
}
