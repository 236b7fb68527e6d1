package augment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/coct-data/service-alerts/app/alert"
)

var _ Summariser = (*OpenAISummariser)(nil)

// OpenAISummariser drafts posts through any OpenAI-compatible chat completions endpoint.
type OpenAISummariser struct {
	client    openai.Client
	model     string
	maxLength int
}

func NewOpenAISummariser(apiKey, baseURL, model string, maxLength int) *OpenAISummariser {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAISummariser{
		client:    openai.NewClient(opts...),
		model:     model,
		maxLength: maxLength,
	}
}

// summaryInput is what the model sees: the source-owned fields a reader cares about.
type summaryInput struct {
	ServiceArea          string `json:"service_area"`
	Title                string `json:"title"`
	Description          string `json:"description"`
	Area                 string `json:"area,omitempty"`
	Location             string `json:"location,omitempty"`
	StartTimestamp       string `json:"start_timestamp"`
	ForecastEndTimestamp string `json:"forecast_end_timestamp,omitempty"`
	Planned              bool   `json:"planned"`
	RequestNumber        string `json:"request_number,omitempty"`
}

func (s *OpenAISummariser) Summarise(ctx context.Context, a *alert.Alert) (string, error) {
	input, err := SummaryPrompt(a)
	if err != nil {
		return "", err
	}

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(s.maxLength)),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to request completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	text := []rune(completion.Choices[0].Message.Content)
	if s.maxLength > 0 && len(text) > s.maxLength {
		text = text[:s.maxLength]
	}
	return string(text), nil
}

func systemPrompt(maxLength int) string {
	return fmt.Sprintf("Draft a social media post of at most %d characters about a City of Cape Town "+
		"service outage or update described by the JSON object provided. The service_area field is the "+
		"responsible department. Lead with the location, date and time; technical detail is optional. "+
		"When a request_number is present, ask residents to quote it when contacting the City. "+
		"Use a formal but polite tone and South African English spelling. Return only the post text.", maxLength)
}

// SummaryPrompt renders the alert as the user message. Times are given in SAST.
func SummaryPrompt(a *alert.Alert) (string, error) {
	input := summaryInput{
		ServiceArea:    string(a.ServiceArea),
		Title:          a.Title,
		Description:    a.Description,
		StartTimestamp: a.StartTimestamp.In(alert.SAST).Format(time.RFC3339),
		Planned:        a.Planned,
	}
	if a.Area != nil {
		input.Area = *a.Area
	}
	if a.Location != nil {
		input.Location = *a.Location
	}
	if a.ForecastEndTimestamp != nil {
		input.ForecastEndTimestamp = a.ForecastEndTimestamp.In(alert.SAST).Format(time.RFC3339)
	}
	if a.RequestNumber != nil {
		input.RequestNumber = *a.RequestNumber
	}

	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}
	return string(data), nil
}
