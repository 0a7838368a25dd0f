package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/metrics"
	"github.com/inboxowl/inboxowl/internal/spam"
)

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("no response from openai")

type Client struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a new OpenAI client. An empty baseURL uses the public API.
func NewClient(apiKey, model, baseURL string, logger *zap.Logger) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

const spamSystemPrompt = `You are an email security assistant. Analyze the email for spam, phishing and other security concerns.

Provide:
1. A spam score between 0 and 1 (where 1 is definitely spam)
2. Whether it's spam (true if score > 0.6, otherwise false)
3. A list of specific reasons for the classification (mention specific suspicious elements)
4. A brief, informative summary of the email content focused on key points and any action items

Respond ONLY with valid JSON in this format:
{"spamScore": 0.1, "isSpam": false, "reasons": ["reason"], "summary": "Brief summary here"}`

const summarySystemPrompt = `You summarize emails. Summarize the email in 2-3 concise sentences.
Focus on the key points and any action items or deadlines. Do not add information that is not in the email.
If there is very little text to summarize, simply say so. Respond with plain text, not JSON.`

// AnalyzeSpam asks the model for a full verdict and validates its answer.
func (c *Client) AnalyzeSpam(ctx context.Context, subject, body string) (*spam.AIVerdict, error) {
	userPrompt := fmt.Sprintf(`Subject: %s

Body:
%s`, orPlaceholder(subject, "(No subject)"), orPlaceholder(body, "(No content)"))

	content, err := c.complete(ctx, "analyze_spam", spamSystemPrompt, userPrompt, 1000)
	if err != nil {
		return nil, err
	}

	verdict, err := spam.ParseVerdict(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse openai response: %w", err)
	}

	return verdict, nil
}

// Summarize asks the model for a short plain-text summary.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	content, err := c.complete(ctx, "summarize", summarySystemPrompt, text, 300)
	if err != nil {
		return "", err
	}

	summary, err := spam.ParseSummary(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse openai response: %w", err)
	}

	return summary, nil
}

func (c *Client) complete(ctx context.Context, operation, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	start := time.Now()
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordGeneratorLatency(operation, "error", elapsed)
		c.logger.Warn("OpenAI request failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", fmt.Errorf("openai api error: %w", err)
	}
	metrics.RecordGeneratorLatency(operation, "success", elapsed)

	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}

	c.logger.Debug("OpenAI request completed",
		zap.String("operation", operation),
		zap.Duration("elapsed", elapsed),
		zap.Int64("total_tokens", response.Usage.TotalTokens),
	)

	return response.Choices[0].Message.Content, nil
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}
