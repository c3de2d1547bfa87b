// Package judgeclient speaks the Judge0 wire protocol. All free-form
// fields cross the wire base64-encoded so arbitrary bytes in source,
// stdin, and outputs survive JSON transport.
package judgeclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErr "intervue/pkg/errors"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultCPUTimeLimit = 2.0

	batchFields = "token,status,stdout,stderr,message,time,memory"
)

// Submission is one test case execution request.
type Submission struct {
	LanguageID     int
	SourceCode     string
	Stdin          string
	ExpectedOutput string
}

// SubmissionStatus is the raw per-token state returned by the judge.
// Stdout, Stderr, and Message are already base64-decoded.
type SubmissionStatus struct {
	Token       string
	StatusID    int
	StatusName  string
	Stdout      string
	Stderr      string
	Message     string
	TimeSeconds string
	MemoryKB    int
}

// Config holds judge endpoint settings.
type Config struct {
	BaseURL string

	// APIKeyHeader/APIKey authenticate against hosted Judge0 deployments.
	// Both empty for an unauthenticated self-hosted instance.
	APIKeyHeader string
	APIKey       string

	Timeout time.Duration

	// CPUTimeLimit is the per-test execution budget in seconds.
	CPUTimeLimit float64
}

// Client is a Judge0 batch client.
type Client struct {
	baseURL      string
	apiKeyHeader string
	apiKey       string
	cpuTimeLimit float64
	httpClient   *http.Client
}

// NewClient creates a new judge client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("judge base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CPUTimeLimit <= 0 {
		cfg.CPUTimeLimit = defaultCPUTimeLimit
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKeyHeader: cfg.APIKeyHeader,
		apiKey:       cfg.APIKey,
		cpuTimeLimit: cfg.CPUTimeLimit,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type batchSubmissionItem struct {
	LanguageID     int     `json:"language_id"`
	SourceCode     string  `json:"source_code"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
}

type batchSubmitRequest struct {
	Submissions []batchSubmissionItem `json:"submissions"`
}

type tokenItem struct {
	Token string `json:"token"`
}

type statusBody struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type batchStatusItem struct {
	Token   string     `json:"token"`
	Status  statusBody `json:"status"`
	Stdout  *string    `json:"stdout"`
	Stderr  *string    `json:"stderr"`
	Message *string    `json:"message"`
	Time    *string    `json:"time"`
	Memory  *int       `json:"memory"`
}

type batchStatusResponse struct {
	Submissions []batchStatusItem `json:"submissions"`
}

// SubmitBatch submits every test case in one request and returns the
// judge tokens in submission order.
func (c *Client) SubmitBatch(ctx context.Context, submissions []Submission) ([]string, error) {
	if len(submissions) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("no submissions to run")
	}

	request := batchSubmitRequest{Submissions: make([]batchSubmissionItem, 0, len(submissions))}
	for _, submission := range submissions {
		request.Submissions = append(request.Submissions, batchSubmissionItem{
			LanguageID:     submission.LanguageID,
			SourceCode:     encode(submission.SourceCode),
			Stdin:          encode(submission.Stdin),
			ExpectedOutput: encode(submission.ExpectedOutput),
			CPUTimeLimit:   c.cpuTimeLimit,
		})
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request failed: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", payload)
	if err != nil {
		return nil, err
	}

	var items []tokenItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeUnavailable, "unexpected batch submit response")
	}
	tokens := make([]string, 0, len(items))
	for _, item := range items {
		if item.Token == "" {
			return nil, appErr.New(appErr.JudgeUnavailable).WithMessage("judge rejected a submission in the batch")
		}
		tokens = append(tokens, item.Token)
	}
	if len(tokens) != len(submissions) {
		return nil, appErr.Newf(appErr.JudgeUnavailable, "judge accepted %d of %d submissions", len(tokens), len(submissions))
	}
	return tokens, nil
}

// GetBatch fetches current status for the given tokens, decoding the
// base64 output fields.
func (c *Client) GetBatch(ctx context.Context, tokens []string) ([]SubmissionStatus, error) {
	if len(tokens) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("no tokens to fetch")
	}

	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "true")
	query.Set("fields", batchFields)

	body, err := c.do(ctx, http.MethodGet, "/submissions/batch?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var response batchStatusResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeUnavailable, "unexpected batch status response")
	}

	statuses := make([]SubmissionStatus, 0, len(response.Submissions))
	for _, item := range response.Submissions {
		statuses = append(statuses, SubmissionStatus{
			Token:       item.Token,
			StatusID:    item.Status.ID,
			StatusName:  item.Status.Description,
			Stdout:      decode(item.Stdout),
			Stderr:      decode(item.Stderr),
			Message:     decode(item.Message),
			TimeSeconds: stringValue(item.Time),
			MemoryKB:    intValue(item.Memory),
		})
	}
	return statuses, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build judge request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKeyHeader != "" && c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, appErr.UpstreamError(err, appErr.JudgeUnavailable, "judge")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErr.UpstreamError(err, appErr.JudgeUnavailable, "judge")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErr.Newf(appErr.JudgeUnavailable, "judge returned status %d", resp.StatusCode).
			WithDetail("body", truncateForLog(body))
	}
	return body, nil
}

func encode(value string) string {
	return base64.StdEncoding.EncodeToString([]byte(value))
}

// decode tolerates plain text: some Judge0 deployments return message
// fields unencoded even when base64_encoded is requested.
func decode(value *string) string {
	if value == nil || *value == "" {
		return ""
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(*value), "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return *value
	}
	return string(decoded)
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func intValue(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}

func truncateForLog(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}
