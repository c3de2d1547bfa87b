package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Session module errors
// 12000-12999: Question & Test case errors
// 13000-13999: Judge run & Submission errors
// 14000-14999: Report & Evaluation errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Auth token errors (10400-10499)
	TokenExpired ErrorCode = 10400
	TokenInvalid ErrorCode = 10401

	// ========== Session Module Errors (11000-11999) ==========

	// Session basic (11000-11099)
	SessionNotFound       ErrorCode = 11000
	SessionAccessDenied   ErrorCode = 11001
	SessionAlreadyExists  ErrorCode = 11002
	SessionCreateFailed   ErrorCode = 11003
	SessionAlreadyOver    ErrorCode = 11004
	SessionNotInProgress  ErrorCode = 11005
	SessionTransitionLost ErrorCode = 11006

	// Creation token (11100-11199)
	CreationTokenMissing  ErrorCode = 11100
	CreationTokenExpired  ErrorCode = 11101
	CreationTokenConsumed ErrorCode = 11102

	// Credits (11200-11299)
	InsufficientCredits ErrorCode = 11200
	CreditDebitFailed   ErrorCode = 11201

	// ========== Question Module Errors (12000-12999) ==========

	QuestionNotFound    ErrorCode = 12000
	QuestionUnavailable ErrorCode = 12001

	// Test cases (12100-12199)
	TestCaseNotFound ErrorCode = 12100
	TestCaseHidden   ErrorCode = 12101

	// Starter code (12200-12299)
	StarterCodeNotFound ErrorCode = 12200

	// ========== Judge Run & Submission Errors (13000-13999) ==========

	// Run (13000-13099)
	RunNotFound          ErrorCode = 13000
	RunSuperseded        ErrorCode = 13001
	LanguageNotSupported ErrorCode = 13002
	CodeTooLarge         ErrorCode = 13003

	// Judge upstream (13100-13199)
	JudgeUnavailable  ErrorCode = 13100
	JudgeRejected     ErrorCode = 13101
	PollTimeout       ErrorCode = 13102
	ResultDecodeError ErrorCode = 13103

	// Submission persistence (13200-13299)
	SubmissionNotFound     ErrorCode = 13200
	SubmissionCreateFailed ErrorCode = 13201
	SubmissionDuplicate    ErrorCode = 13202

	// ========== Report & Evaluation Errors (14000-14999) ==========

	ReportNotFound    ErrorCode = 14000
	EvaluationFailed  ErrorCode = 14001
	ScorecardParse    ErrorCode = 14002
	TranscriptMissing ErrorCode = 14003
	ArchiveFailed     ErrorCode = 14004
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Auth tokens
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Session
	SessionNotFound:       "Session not found",
	SessionAccessDenied:   "Access to this session is denied",
	SessionAlreadyExists:  "Session already exists",
	SessionCreateFailed:   "Failed to create session",
	SessionAlreadyOver:    "Session has already ended",
	SessionNotInProgress:  "Session is not in progress",
	SessionTransitionLost: "Session transition was superseded",

	// Creation token
	CreationTokenMissing:  "Session creation token is missing",
	CreationTokenExpired:  "Session creation token has expired",
	CreationTokenConsumed: "Session creation token was already used",

	// Credits
	InsufficientCredits: "Insufficient credits to start a session",
	CreditDebitFailed:   "Failed to debit credits",

	// Question
	QuestionNotFound:    "Question not found",
	QuestionUnavailable: "Question is not available",

	// Test cases
	TestCaseNotFound: "Test cases not found",
	TestCaseHidden:   "Test case details are hidden",

	// Starter code
	StarterCodeNotFound: "Starter code not found",

	// Run
	RunNotFound:          "Run not found",
	RunSuperseded:        "Run was superseded by a newer run",
	LanguageNotSupported: "Programming language not supported",
	CodeTooLarge:         "Code is too large",

	// Judge upstream
	JudgeUnavailable:  "Judge service is unavailable",
	JudgeRejected:     "Judge service rejected the batch",
	PollTimeout:       "Timed out waiting for judge results",
	ResultDecodeError: "Failed to decode judge results",

	// Submission persistence
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	SubmissionDuplicate:    "Submission already persisted for this run",

	// Report & Evaluation
	ReportNotFound:    "Report not found",
	EvaluationFailed:  "Evaluation service failed",
	ScorecardParse:    "Failed to parse evaluation scorecard",
	TranscriptMissing: "Transcript is required",
	ArchiveFailed:     "Failed to archive session artifacts",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == InsufficientCredits:
		return 402
	case c == Forbidden, c == SessionAccessDenied:
		return 403
	case c == NotFound, c == SessionNotFound, c == QuestionNotFound,
		c == TestCaseNotFound, c == StarterCodeNotFound, c == RunNotFound,
		c == SubmissionNotFound, c == ReportNotFound:
		return 404
	case c == SessionAlreadyOver, c == SessionAlreadyExists, c == SubmissionDuplicate:
		return 409
	case c >= 11100 && c < 11200: // creation token errors
		return 410
	case c == TooManyRequests:
		return 429
	case c == JudgeUnavailable, c == JudgeRejected, c == EvaluationFailed:
		return 502
	case c == ServiceUnavailable:
		return 503
	case c == PollTimeout, c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge:
		return 400
	default:
		return 500
	}
}
