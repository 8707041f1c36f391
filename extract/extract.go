// Package extract turns free-form text into task drafts using the Gemini API.
// Its output is untrusted; callers validate before persisting anything.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"

	"leaddesk-api/domain"
)

const defaultModel = "gemini-2.0-flash"

const systemPrompt = `Extract a single task from the user's text.
Respond with one JSON object and nothing else, using exactly these keys:
{"title": string, "phone": string, "description": string, "due": string}
title is a short imperative summary. phone is the phone number if one is
mentioned, otherwise empty. due is an ISO 8601 date or datetime if the text
names one, otherwise empty. Never invent values.`

// generator is the slice of the Gemini client the extractor uses. Tests
// substitute a stub.
type generator interface {
	generate(ctx context.Context, model, prompt string) (string, error)
}

// Extractor asks a language model to pull task fields out of raw text.
type Extractor struct {
	gen   generator
	model string
}

type genaiClient struct {
	client *genai.Client
}

func (g genaiClient) generate(ctx context.Context, model, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return result.Text(), nil
}

// New creates an Extractor backed by the Gemini API. An empty model selects
// the default.
func New(ctx context.Context, apiKey, model string) (*Extractor, error) {
	if apiKey == "" {
		return nil, errors.New("extract: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Extractor{gen: genaiClient{client: client}, model: model}, nil
}

// Draft extracts a task draft from text. The draft is returned unvalidated.
func (e *Extractor) Draft(ctx context.Context, text string) (domain.TaskDraft, error) {
	reply, err := e.gen.generate(ctx, e.model, text)
	if err != nil {
		return domain.TaskDraft{}, err
	}
	return parseReply(reply)
}

// parseReply decodes the model's JSON answer, tolerating a markdown code
// fence around it.
func parseReply(reply string) (domain.TaskDraft, error) {
	trimmed := strings.TrimSpace(reply)
	if after, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = after
	} else if after, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	trimmed = strings.TrimSpace(trimmed)

	var draft domain.TaskDraft
	if err := sonic.Unmarshal([]byte(trimmed), &draft); err != nil {
		return domain.TaskDraft{}, fmt.Errorf("unparseable model reply: %w", err)
	}
	return draft, nil
}
