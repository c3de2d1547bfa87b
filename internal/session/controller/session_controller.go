package controller

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"intervue/internal/common/http/middleware"
	"intervue/internal/session/repository"
	"intervue/internal/session/service"
	"intervue/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// maxAbandonBodyBytes bounds the beacon body read.
const maxAbandonBodyBytes = 4 << 10

// SessionController handles session lifecycle HTTP endpoints.
type SessionController struct {
	sessionService *service.SessionService
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessionService *service.SessionService) *SessionController {
	return &SessionController{sessionService: sessionService}
}

// CreateRequest is the session create payload.
type CreateRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	QuestionURI string `json:"question_uri" binding:"required"`
}

// SessionSummary is the list view of one session.
type SessionSummary struct {
	SessionID  string     `json:"session_id"`
	QuestionID int64      `json:"question_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Provision mints a session id and its single-use creation token.
func (h *SessionController) Provision(c *gin.Context) {
	if _, ok := middleware.UserID(c); !ok {
		response.Unauthorized(c, "")
		return
	}
	result, err := h.sessionService.Provision(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Validate reports whether the session may continue.
func (h *SessionController) Validate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	sessionID := c.Param("id")
	middleware.WithSessionID(c, sessionID)
	result, err := h.sessionService.Validate(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Create consumes the creation token and starts the session.
func (h *SessionController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	middleware.WithSessionID(c, req.SessionID)
	result, err := h.sessionService.Create(c.Request.Context(), service.CreateInput{
		SessionID:   req.SessionID,
		QuestionURI: req.QuestionURI,
		UserID:      userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Abandon is beacon-friendly: browsers fire it during page unload with
// whatever content type sendBeacon picked, so it accepts a JSON object, a
// bare session id string, or an empty body, and answers fast. A session
// that is already over still gets a 200.
func (h *SessionController) Abandon(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		sessionID = abandonSessionIDFromBody(c)
	}
	if sessionID == "" {
		response.BadRequest(c, "Invalid session id")
		return
	}
	middleware.WithSessionID(c, sessionID)
	if err := h.sessionService.Abandon(c.Request.Context(), sessionID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"session_id": sessionID})
}

// List returns the caller's sessions, newest first.
func (h *SessionController) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	sessions, err := h.sessionService.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, SessionSummary{
			SessionID:  session.ID,
			QuestionID: session.QuestionID,
			Status:     string(session.Status),
			StartedAt:  session.StartedAt,
			EndedAt:    session.EndedAt,
		})
	}
	response.Success(c, summaries)
}

// Credits returns the caller's remaining credit balance.
func (h *SessionController) Credits(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	credits, err := h.sessionService.Credits(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"credits": credits})
}

// Get returns the full session, report blob included, for its owner.
func (h *SessionController) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	sessionID := c.Param("id")
	middleware.WithSessionID(c, sessionID)
	session, err := h.sessionService.Get(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sessionView(session))
}

func sessionView(session *repository.Session) gin.H {
	view := gin.H{
		"session_id":  session.ID,
		"question_id": session.QuestionID,
		"status":      string(session.Status),
		"started_at":  session.StartedAt,
		"visibility":  string(session.Visibility),
	}
	if session.EndedAt != nil {
		view["ended_at"] = *session.EndedAt
	}
	if session.FinalCode != nil {
		view["final_code"] = *session.FinalCode
	}
	if session.Transcript != nil {
		view["transcript"] = *session.Transcript
	}
	if session.Events != nil {
		view["events"] = json.RawMessage(*session.Events)
	}
	return view
}

func abandonSessionIDFromBody(c *gin.Context) string {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAbandonBodyBytes))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.SessionID != "" {
		return payload.SessionID
	}
	return strings.Trim(strings.TrimSpace(string(body)), `"`)
}
