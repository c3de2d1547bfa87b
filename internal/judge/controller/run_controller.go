package controller

import (
	"intervue/internal/common/http/middleware"
	"intervue/internal/judge/service"
	appErr "intervue/pkg/errors"
	"intervue/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RunController handles judge run HTTP endpoints.
type RunController struct {
	runService *service.RunService
}

// NewRunController creates a new RunController.
func NewRunController(runService *service.RunService) *RunController {
	return &RunController{runService: runService}
}

// StartRequest is the run submit payload.
type StartRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Language  string `json:"language" binding:"required"`
	Code      string `json:"code"`
}

// Start submits candidate code against the session's test case set.
func (h *RunController) Start(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	middleware.WithSessionID(c, req.SessionID)
	result, err := h.runService.StartRun(c.Request.Context(), service.StartRunInput{
		SessionID: req.SessionID,
		UserID:    userID,
		Language:  req.Language,
		Code:      req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Get polls the run once. Partial results are included while the judge
// is still working; ?wait=1 blocks through the bounded poll loop instead.
func (h *RunController) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	runID := c.Param("id")
	if runID == "" {
		response.BadRequest(c, "Invalid run id")
		return
	}

	wait := c.Query("wait") == "1"
	var snapshot interface{}
	var err error
	if wait {
		snapshot, err = h.runService.AwaitResult(c.Request.Context(), runID, userID, nil)
	} else {
		snapshot, err = h.runService.PollOnce(c.Request.Context(), runID, userID)
	}
	if err != nil {
		// The snapshot still carries any decoded partial results;
		// poll timeouts and persistence failures must not eat them.
		code := appErr.GetCode(err)
		if code == appErr.PollTimeout || code == appErr.DatabaseError {
			response.ErrorWithDetails(c, err, snapshot)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, snapshot)
}
