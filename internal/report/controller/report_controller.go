package controller

import (
	"intervue/internal/common/http/middleware"
	"intervue/internal/report/service"
	"intervue/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ReportController handles session completion HTTP endpoints.
type ReportController struct {
	reportService *service.ReportService
}

// NewReportController creates a new ReportController.
func NewReportController(reportService *service.ReportService) *ReportController {
	return &ReportController{reportService: reportService}
}

// CompleteRequest carries the final state of the interview. Expired
// marks the auto-submit fired by the countdown reaching zero.
type CompleteRequest struct {
	FinalCode  string `json:"final_code"`
	Transcript string `json:"transcript"`
	Expired    bool   `json:"expired"`
}

// Complete finalizes the session: evaluation, guarded completion, report.
func (h *ReportController) Complete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		response.BadRequest(c, "Invalid session id")
		return
	}
	middleware.WithSessionID(c, sessionID)
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := h.reportService.Complete(c.Request.Context(), service.CompleteInput{
		SessionID:  sessionID,
		UserID:     userID,
		FinalCode:  req.FinalCode,
		Transcript: req.Transcript,
		Expired:    req.Expired,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
