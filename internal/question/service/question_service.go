package service

import (
	"context"
	"errors"
	"fmt"

	"intervue/internal/question/repository"
	appErr "intervue/pkg/errors"
)

// Config holds question service dependencies.
type Config struct {
	QuestionRepo repository.QuestionRepository
}

// QuestionService serves the question read model to the outer surface.
type QuestionService struct {
	questionRepo repository.QuestionRepository
}

// QuestionDetail is the boundary view of a question. Hidden test cases are
// listed by id only.
type QuestionDetail struct {
	ID             int64             `json:"id"`
	QuestionURI    string            `json:"question_uri"`
	QuestionNumber int               `json:"question_number"`
	Title          string            `json:"title"`
	DescriptionMD  string            `json:"description_md"`
	Difficulty     string            `json:"difficulty"`
	Summary        string            `json:"summary"`
	TestCases      []TestCaseView    `json:"test_cases"`
	StarterCodes   []StarterCodeView `json:"starter_codes"`
}

// TestCaseView masks hidden cases: only the id crosses the boundary.
type TestCaseView struct {
	ID             int64  `json:"id"`
	Hidden         bool   `json:"hidden"`
	Input          string `json:"input,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

type StarterCodeView struct {
	Language string `json:"language"`
	Imports  string `json:"imports"`
	Code     string `json:"code"`
	Main     string `json:"main"`
}

func NewQuestionService(cfg Config) (*QuestionService, error) {
	if cfg.QuestionRepo == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	return &QuestionService{questionRepo: cfg.QuestionRepo}, nil
}

// GetQuestion returns the question with visible test cases and starter
// codes for every supported language.
func (s *QuestionService) GetQuestion(ctx context.Context, questionURI string) (QuestionDetail, error) {
	if questionURI == "" {
		return QuestionDetail{}, appErr.New(appErr.InvalidParams).WithMessage("question uri is required")
	}

	question, err := s.questionRepo.GetByURI(ctx, questionURI)
	if err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return QuestionDetail{}, appErr.New(appErr.QuestionNotFound)
		}
		return QuestionDetail{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load question")
	}

	cases, err := s.questionRepo.ListTestCases(ctx, question.ID)
	if err != nil {
		return QuestionDetail{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load test cases")
	}

	starters, err := s.questionRepo.ListStarterCodes(ctx, question.ID)
	if err != nil {
		return QuestionDetail{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load starter codes")
	}

	detail := QuestionDetail{
		ID:             question.ID,
		QuestionURI:    question.QuestionURI,
		QuestionNumber: question.QuestionNumber,
		Title:          question.Title,
		DescriptionMD:  question.DescriptionMD,
		Difficulty:     question.Difficulty,
		Summary:        question.Summary,
		TestCases:      MaskTestCases(cases),
	}
	for _, starter := range starters {
		detail.StarterCodes = append(detail.StarterCodes, StarterCodeView{
			Language: starter.Language,
			Imports:  starter.Imports,
			Code:     starter.Code,
			Main:     starter.Main,
		})
	}
	return detail, nil
}

// MaskTestCases converts test cases to their boundary view, stripping
// content from hidden ones.
func MaskTestCases(cases []repository.TestCase) []TestCaseView {
	views := make([]TestCaseView, 0, len(cases))
	for _, testCase := range cases {
		view := TestCaseView{ID: testCase.ID, Hidden: testCase.Hidden}
		if !testCase.Hidden {
			view.Input = testCase.Input
			view.ExpectedOutput = testCase.ExpectedOutput
		}
		views = append(views, view)
	}
	return views
}
