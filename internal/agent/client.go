package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"echomind/internal/checkin"
	"echomind/internal/patient"
)

const classifyRetries = 2

// Client scores check-in exchanges and generates follow-up questions through
// the OpenAI chat completion API. It satisfies both checkin.Classifier and
// checkin.Generator.
type Client struct {
	api   *openai.Client
	model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Classify asks the model for a single sentiment score in [0, 1] for one
// question/response exchange. Transient failures are retried a couple of
// times; the caller falls back to a neutral score if all attempts fail.
func (c *Client) Classify(ctx context.Context, text string) (float64, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a mental health sentiment classifier. Given a check-in question and " +
					"the patient's response, output a single number between 0 and 1 where 0 is severe " +
					"distress and 1 is excellent wellbeing. Output only the number.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= classifyRetries; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion")
			continue
		}
		score, err := parseScore(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			continue
		}
		return score, nil
	}
	return 0, fmt.Errorf("sentiment classification failed after %d attempts: %w", classifyRetries+1, lastErr)
}

// NextQuestion generates the follow-up question once the fixed bank is
// exhausted, grounded in the patient's recent scored exchanges.
func (c *Client) NextQuestion(ctx context.Context, p *patient.Patient, history []checkin.Exchange) (string, error) {
	var sb strings.Builder
	for _, e := range history {
		fmt.Fprintf(&sb, "Q: %s\nA: %s (sentiment %.2f)\n", e.Question, e.Response, e.Score)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You are a caring mental health assistant checking in on %s, who is "+
					"managing %s. Based on the conversation so far, ask one short, warm follow-up "+
					"question. Output only the question.", p.Name, p.Condition),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: sb.String(),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate follow-up question: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseScore extracts the numeric score from a completion, tolerating stray
// quoting or a trailing period.
func parseScore(content string) (float64, error) {
	s := strings.TrimSpace(content)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSuffix(s, ".")
	score, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q: %w", content, err)
	}
	return score, nil
}
