package spam

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("empty model response")

// AIVerdict is a full verdict produced by a generative model.
type AIVerdict struct {
	Verdict
	Summary string `json:"summary"`
}

type modelVerdict struct {
	SpamScore *float64 `json:"spamScore"`
	IsSpam    *bool    `json:"isSpam"`
	Reasons   []string `json:"reasons"`
	Summary   string   `json:"summary"`
}

// ParseVerdict validates untrusted model output as a spam verdict. The spam
// flag is recomputed from the score so every verdict uses the same threshold.
func ParseVerdict(text string) (*AIVerdict, error) {
	payload, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var mv modelVerdict
	if err := json.Unmarshal([]byte(payload), &mv); err != nil {
		return nil, fmt.Errorf("failed to parse model verdict: %w", err)
	}
	if mv.SpamScore == nil {
		return nil, fmt.Errorf("model verdict is missing spamScore")
	}
	score := *mv.SpamScore
	if math.IsNaN(score) || score < 0 || score > 1 {
		return nil, fmt.Errorf("model spamScore %v out of range", score)
	}

	reasons := make([]string, 0, len(mv.Reasons))
	for _, r := range mv.Reasons {
		if r = strings.TrimSpace(r); r != "" {
			reasons = append(reasons, r)
		}
	}

	return &AIVerdict{
		Verdict: Verdict{
			IsSpam:    IsSpamScore(score),
			SpamScore: score,
			Reasons:   reasons,
		},
		Summary: strings.TrimSpace(mv.Summary),
	}, nil
}

// ParseSummary accepts either plain text or a JSON object with a summary field.
func ParseSummary(text string) (string, error) {
	text = stripCodeFence(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	if payload, err := extractJSONObject(text); err == nil {
		var obj struct {
			Summary string `json:"summary"`
		}
		if json.Unmarshal([]byte(payload), &obj) == nil && strings.TrimSpace(obj.Summary) != "" {
			return strings.TrimSpace(obj.Summary), nil
		}
	}
	return text, nil
}

func extractJSONObject(text string) (string, error) {
	text = stripCodeFence(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in model response")
	}
	return text[start : end+1], nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
