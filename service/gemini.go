package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ParableToVideo-server/apperr"
)

// GeminiClient serves both text and image synthesis from one API client.
type GeminiClient struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

func NewGeminiClient(ctx context.Context, apiKey, textModel, imageModel string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, textModel: textModel, imageModel: imageModel}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.textModel)
	model.SetTemperature(0.8)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", apperr.External("gemini generate failed: %v", err)
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", apperr.External("gemini returned no text")
	}
	return sb.String(), nil
}

// GenerateImage returns nil without error when the model answered with text
// only; callers treat that as a per-scene failure.
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string, style StyleContext) (*Image, error) {
	model := c.client.GenerativeModel(c.imageModel)
	resp, err := model.GenerateContent(ctx, genai.Text(style.Compose(prompt)))
	if err != nil {
		return nil, apperr.External("gemini image generation failed: %v", err)
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if b, ok := part.(genai.Blob); ok && len(b.Data) > 0 {
				return &Image{Data: b.Data, MIMEType: b.MIMEType}, nil
			}
		}
	}
	return nil, nil
}
