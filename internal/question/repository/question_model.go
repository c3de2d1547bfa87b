package repository

import "time"

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is the read model for an interview question.
type Question struct {
	ID             int64
	QuestionURI    string
	QuestionNumber int
	Title          string
	DescriptionMD  string
	Difficulty     string
	Summary        string
	CreatedAt      time.Time
}

// TestCase belongs to a question. Hidden cases must never leave the service
// boundary with their input or expected output attached.
type TestCase struct {
	ID             int64
	QuestionID     int64
	Input          string
	ExpectedOutput string
	Hidden         bool
	CreatedAt      time.Time
}

// StarterCode is the per-language scaffold around the candidate's code.
type StarterCode struct {
	QuestionID int64
	Language   string
	LanguageID int
	Imports    string
	Code       string
	Main       string
}

// Assemble builds the executable source sent to the judge: the language
// preamble, the candidate's code, then the test harness.
func (s StarterCode) Assemble(candidateCode string) string {
	return s.Imports + "\n" + candidateCode + "\n" + s.Main
}
