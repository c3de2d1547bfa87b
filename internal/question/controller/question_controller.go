package controller

import (
	"intervue/internal/question/service"
	"intervue/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// QuestionController handles question HTTP endpoints.
type QuestionController struct {
	questionService *service.QuestionService
}

// NewQuestionController creates a new QuestionController.
func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{questionService: questionService}
}

// Get returns one question with visible test cases and starter codes.
func (h *QuestionController) Get(c *gin.Context) {
	questionURI := c.Param("uri")
	if questionURI == "" {
		response.BadRequest(c, "Invalid question uri")
		return
	}
	detail, err := h.questionService.GetQuestion(c.Request.Context(), questionURI)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}
