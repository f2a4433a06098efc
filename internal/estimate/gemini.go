package estimate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

var digitsPattern = regexp.MustCompile(`[0-9]+`)

// Gemini asks a Gemini model for a wait estimate given the live queue
// snapshot. The prompt demands a bare number; anything else is an error
// and the caller falls back to the heuristic.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: geminiModel}, nil
}

func (g *Gemini) Estimate(ctx context.Context, in Input) (int, error) {
	prompt := fmt.Sprintf(
		"You estimate restaurant waitlist times. Branch: %s. It is %s at %s. "+
			"There are %d parties waiting ahead. The average completed visit lasts %.0f minutes. "+
			"Parties currently in the queue have waited %.0f minutes on average, %.0f minutes at most. "+
			"Reply with a single integer: the estimated wait in minutes for a new arrival. No other text.",
		in.BranchName, in.Weekday, in.TimeOfDay,
		in.QueueLength, in.AverageVisitMinutes,
		in.AverageWaitMinutes, in.MaxWaitMinutes,
	)

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return 0, fmt.Errorf("generate content: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return 0, fmt.Errorf("empty model response")
	}

	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	match := digitsPattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("non numeric model response %q", text)
	}
	minutes, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("parse model response %q: %w", text, err)
	}
	return minutes, nil
}
