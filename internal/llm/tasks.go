package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"curator/internal/core"
	"curator/internal/logger"
)

const (
	// DestinationNeedsReview is the classification destination that parks
	// an item for a human, and the fail-open default when every provider
	// is down.
	DestinationNeedsReview = "needs_review"

	maxPromptContentChars = 12000
)

const classifyPromptTemplate = `You are triaging articles for a personal content curation dashboard.
Decide the best destination for the article below. Valid destinations:
"linkedin" (worth turning into a LinkedIn post), "podcast" (worth covering
in a podcast episode), "archive" (interesting but no action), or
"needs_review" (unclear, a human should look).

Respond with only a JSON object:
{"destination": "...", "confidence_score": 0.0, "reasoning": "one or two sentences"}

Title: %s
Publisher: %s

Article:
%s`

const postPromptTemplate = `Write a LinkedIn post draft based on the article below. Keep it under 200
words, professional but conversational, with a short hook in the first line.

Respond with only a JSON object:
{"content": "the post text", "tone": "one word", "tags": ["up", "to", "five", "hashtags"], "call_to_action": "closing line"}

Title: %s

Article:
%s`

const scriptPromptTemplate = `Write a short podcast segment script (60-90 seconds when read aloud)
covering the article below. Spoken, direct style; no stage directions.

Respond with only a JSON object:
{"content": "the script text", "tone": "one word", "tags": ["up", "to", "five", "topics"], "call_to_action": "sign-off line"}

Title: %s

Article:
%s`

// classificationResult is the JSON shape every provider must produce for a
// classification task.
type classificationResult struct {
	Destination string  `json:"destination"`
	Confidence  float64 `json:"confidence_score"`
	Reasoning   string  `json:"reasoning"`
}

// generationResult is the JSON shape for post and script generation tasks.
type generationResult struct {
	Content      string   `json:"content"`
	Tone         string   `json:"tone"`
	Tags         []string `json:"tags"`
	CallToAction string   `json:"call_to_action"`
}

// Classify routes an item to a destination. It never returns an error: when
// the chain is exhausted the result is the needs_review default with zero
// confidence and an explanatory reasoning string.
func (c *Chain) Classify(ctx context.Context, item core.Item, content string) core.Classification {
	prompt := fmt.Sprintf(classifyPromptTemplate, item.Title, item.Publisher, truncate(content))

	var result classificationResult
	provider, err := c.run(ctx, prompt, &result, func() {
		result = classificationResult{}
	}, func() error {
		if strings.TrimSpace(result.Destination) == "" {
			return fmt.Errorf("missing destination")
		}
		return nil
	})
	if err != nil {
		logger.Warn("classification degraded to needs_review default",
			map[string]any{"item_id": item.ID, "error": err.Error()})
		return core.Classification{
			ItemID:       item.ID,
			Destination:  DestinationNeedsReview,
			Confidence:   0,
			Reasoning:    fmt.Sprintf("Automatic classification unavailable (%v); routed for manual review.", err),
			ClassifiedAt: time.Now().UTC(),
		}
	}

	return core.Classification{
		ItemID:       item.ID,
		Destination:  strings.ToLower(strings.TrimSpace(result.Destination)),
		Confidence:   clamp01(result.Confidence),
		Reasoning:    result.Reasoning,
		Provider:     provider,
		ClassifiedAt: time.Now().UTC(),
	}
}

// GeneratePost produces a LinkedIn post draft for an item. It never returns
// an error: chain exhaustion yields a deterministic locally assembled draft.
func (c *Chain) GeneratePost(ctx context.Context, item core.Item, content string) core.Artifact {
	prompt := fmt.Sprintf(postPromptTemplate, item.Title, truncate(content))
	return c.generate(ctx, item, "linkedin", prompt, fallbackPost(item))
}

// GenerateScript produces a podcast segment script for an item, with the
// same fail-open behavior as GeneratePost.
func (c *Chain) GenerateScript(ctx context.Context, item core.Item, content string) core.Artifact {
	prompt := fmt.Sprintf(scriptPromptTemplate, item.Title, truncate(content))
	return c.generate(ctx, item, "podcast", prompt, fallbackScript(item))
}

func (c *Chain) generate(ctx context.Context, item core.Item, target, prompt string, fallback generationResult) core.Artifact {
	var result generationResult
	provider, err := c.run(ctx, prompt, &result, func() {
		result = generationResult{}
	}, func() error {
		if strings.TrimSpace(result.Content) == "" {
			return fmt.Errorf("missing content")
		}
		return nil
	})
	if err != nil {
		logger.Warn("generation degraded to local fallback draft",
			map[string]any{"item_id": item.ID, "target": target, "error": err.Error()})
		result = fallback
		provider = ""
	}

	return core.Artifact{
		ItemID:       item.ID,
		Target:       target,
		Status:       core.ArtifactDraft,
		Content:      result.Content,
		Tone:         result.Tone,
		Tags:         result.Tags,
		CallToAction: result.CallToAction,
		Provider:     provider,
		GeneratedAt:  time.Now().UTC(),
	}
}

// fallbackPost is the deterministic draft used when no provider is
// reachable. It is intentionally plain so a human will rework it.
func fallbackPost(item core.Item) generationResult {
	source := item.Publisher
	if source == "" {
		source = "the source"
	}
	return generationResult{
		Content: fmt.Sprintf("Worth a read: %q via %s.\n\n%s\n\nDraft generated offline; edit before posting.",
			item.Title, source, item.CleanURL),
		Tone:         "neutral",
		Tags:         []string{"#reading"},
		CallToAction: "What's your take?",
	}
}

func fallbackScript(item core.Item) generationResult {
	return generationResult{
		Content: fmt.Sprintf("Next up: %s. Full story at %s. This segment draft was generated offline; flesh it out before recording.",
			item.Title, item.CleanURL),
		Tone:         "neutral",
		Tags:         []string{"news"},
		CallToAction: "More after the break.",
	}
}

func truncate(content string) string {
	if len(content) > maxPromptContentChars {
		return content[:maxPromptContentChars]
	}
	return content
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
