// Package evalclient grades finished interviews with a chat completion.
// The model is instructed to answer as a single JSON object so the
// scorecard can be parsed mechanically.
package evalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	appErr "intervue/pkg/errors"
)

// Recommendation values the model may return.
const (
	RecommendationStrongHire = "Strong Hire"
	RecommendationHire       = "Hire"
	RecommendationMaybe      = "Maybe"
	RecommendationNoHire     = "No Hire"
)

// DimensionScore grades one evaluation dimension on a 1-5 scale.
type DimensionScore struct {
	Score     int    `json:"score"`
	Evidence  string `json:"evidence"`
	Reasoning string `json:"reasoning"`
}

// SubmissionComment is the model's note on one judge submission.
type SubmissionComment struct {
	SubmissionNumber int    `json:"submissionNumber"`
	Comment          string `json:"comment"`
}

// Scorecard is the parsed evaluation result.
type Scorecard struct {
	ProblemSolving     DimensionScore      `json:"problemSolving"`
	CodeQuality        DimensionScore      `json:"codeQuality"`
	Communication      DimensionScore      `json:"communication"`
	Debugging          DimensionScore      `json:"debugging"`
	Recommendation     string              `json:"recommendation"`
	Summary            string              `json:"summary"`
	SubmissionComments []SubmissionComment `json:"submissionComments"`
}

// ChatClient captures the subset of the go-openai client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Options configures the evaluation client.
type Options struct {
	Client ChatClient
	Model  string
}

// Client turns interview material into a scorecard.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an evaluation client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	return &Client{chat: opts.Client, model: opts.Model}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), Model: model})
}

// Evaluate sends the assembled prompts and parses the scorecard. A
// transport or upstream failure maps to EvaluationFailed; a response
// that is not a valid scorecard maps to ScorecardParse. Either way no
// partial scorecard escapes.
func (c *Client) Evaluate(ctx context.Context, systemPrompt, userPrompt string) (Scorecard, error) {
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return Scorecard{}, appErr.UpstreamError(err, appErr.EvaluationFailed, "evaluation")
	}
	if len(response.Choices) == 0 {
		return Scorecard{}, appErr.New(appErr.EvaluationFailed).WithMessage("evaluation returned no choices")
	}

	return ParseScorecard(response.Choices[0].Message.Content)
}

// ParseScorecard decodes and validates a scorecard JSON document.
func ParseScorecard(content string) (Scorecard, error) {
	var scorecard Scorecard
	if err := json.Unmarshal([]byte(content), &scorecard); err != nil {
		return Scorecard{}, appErr.Wrapf(err, appErr.ScorecardParse, "scorecard is not valid JSON")
	}
	if err := scorecard.Validate(); err != nil {
		return Scorecard{}, appErr.Wrapf(err, appErr.ScorecardParse, "scorecard failed validation")
	}
	return scorecard, nil
}

// Validate checks score ranges and the recommendation enum.
func (s Scorecard) Validate() error {
	dimensions := map[string]DimensionScore{
		"problemSolving": s.ProblemSolving,
		"codeQuality":    s.CodeQuality,
		"communication":  s.Communication,
		"debugging":      s.Debugging,
	}
	for name, dimension := range dimensions {
		if dimension.Score < 1 || dimension.Score > 5 {
			return fmt.Errorf("%s score %d out of range", name, dimension.Score)
		}
	}
	switch strings.TrimSpace(s.Recommendation) {
	case RecommendationStrongHire, RecommendationHire, RecommendationMaybe, RecommendationNoHire:
		return nil
	default:
		return fmt.Errorf("unknown recommendation %q", s.Recommendation)
	}
}
