package model

import "time"

// Judge0 status ids. Anything above StatusProcessing is terminal.
const (
	StatusInQueue     = 1
	StatusProcessing  = 2
	StatusAccepted    = 3
	StatusWrongAnswer = 4
)

// IsTerminal reports whether a Judge0 status id will not change again.
func IsTerminal(statusID int) bool {
	return statusID > StatusProcessing
}

// Passed reports whether a terminal status means the test case passed.
func Passed(statusID int) bool {
	return statusID == StatusAccepted
}

// TestResult is the decoded outcome of one test case execution.
type TestResult struct {
	TestCaseID  int64  `json:"test_case_id"`
	Token       string `json:"-"`
	StatusID    int    `json:"status_id"`
	StatusName  string `json:"status_name,omitempty"`
	Passed      bool   `json:"passed"`
	Finished    bool   `json:"finished"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
	Message     string `json:"message,omitempty"`
	TimeSeconds string `json:"time_seconds,omitempty"`
	MemoryKB    int    `json:"memory_kb,omitempty"`
}

// Run tracks one judge run from submit to persistence. Runs live only in
// memory; a reload starts fresh and a newer run supersedes older ones for
// the same session.
type Run struct {
	RunID         string
	SessionID     string
	UserID        int64
	QuestionID    int64
	Language      string
	CandidateCode string
	Tokens        []string
	TestCaseIDs   []int64
	SubmittedAt   time.Time
	TestCaseCount int

	// ElapsedSeconds is how far into the session the run was submitted.
	ElapsedSeconds int64
}

// Snapshot is one poll observation of a run, partial results included.
type Snapshot struct {
	RunID       string       `json:"run_id"`
	SessionID   string       `json:"session_id"`
	Stale       bool         `json:"stale"`
	Done        bool         `json:"done"`
	PassedCount int          `json:"passed_count"`
	FailedCount int          `json:"failed_count"`
	TotalCount  int          `json:"total_count"`
	Results     []TestResult `json:"results"`
}
