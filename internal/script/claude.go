package script

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

const (
	temperature    = 0.7
	maxTokens      = 4000
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	backoffMult    = 2
)

// ModelNames returns the accepted model aliases.
func ModelNames() []string {
	return []string{"haiku", "sonnet"}
}

// ClaudeGenerator generates scripts with the Anthropic Messages API.
type ClaudeGenerator struct {
	client anthropic.Client
	model  string
}

// NewClaudeGenerator creates a generator. An empty apiKey falls back to the
// ANTHROPIC_API_KEY environment variable read by the SDK.
func NewClaudeGenerator(apiKey, model string) *ClaudeGenerator {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	modelID := claudeModels[model]
	if modelID == "" {
		modelID = claudeModels["haiku"]
	}
	return &ClaudeGenerator{
		client: anthropic.NewClient(opts...),
		model:  modelID,
	}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, content string, lang Language) (*Script, error) {
	sysPrompt := buildSystemPrompt(lang)
	userPrompt := buildUserPrompt(content, lang)

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}

		message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(g.model),
			MaxTokens:   maxTokens,
			Temperature: anthropic.Float(temperature),
			System: []anthropic.TextBlockParam{
				{Text: sysPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("error generating script (attempt %d/%d): %w", attempt, maxRetries, err)
			continue
		}

		text := extractText(message)
		if text == "" {
			lastErr = fmt.Errorf("empty response from Claude (attempt %d/%d)", attempt, maxRetries)
			continue
		}

		script, err := Parse(text)
		if err != nil {
			lastErr = fmt.Errorf("failed to parse script JSON (attempt %d/%d): %w", attempt, maxRetries, err)
			continue
		}

		return script, nil
	}

	return nil, lastErr
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

// Parse decodes a model response into a Script. Markdown fences and text
// around the JSON object are tolerated. Speakers must be valid roles and
// there must be at least one turn; turn text is not checked.
func Parse(text string) (*Script, error) {
	text = stripMarkdownFences(text)
	text = extractJSON(text)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no JSON content found in response")
	}

	var s Script
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w\nRaw text (first 500 chars): %s", err, truncate(text, 500))
	}

	if len(s.Turns) == 0 {
		return nil, fmt.Errorf("script has no conversation")
	}
	for i, turn := range s.Turns {
		if !turn.Speaker.Valid() {
			return nil, fmt.Errorf("turn %d has invalid speaker %q (must be teacher or student)", i, turn.Speaker)
		}
	}

	return &s, nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

func stripMarkdownFences(text string) string {
	if matches := fenceRe.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return text
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
