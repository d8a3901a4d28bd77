package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TalentGate/candidate-session-service/internal/engine"
	"github.com/TalentGate/candidate-session-service/internal/gateway"
	"github.com/TalentGate/candidate-session-service/internal/models"
	"github.com/TalentGate/candidate-session-service/internal/store"
	"github.com/TalentGate/candidate-session-service/internal/utils"
	"github.com/TalentGate/candidate-session-service/internal/validator"
)

type SessionHandler struct {
	BaseHandler
	manager   *engine.Manager
	validator *validator.Validator
}

func NewSessionHandler(manager *engine.Manager, validator *validator.Validator, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(logger),
		manager:     manager,
		validator:   validator,
	}
}

// ===== REQUEST STRUCTURES =====

type VerifyRequest struct {
	IdentityNumber string `json:"identity_number" validate:"required"`
}

type VerifyResponse struct {
	Verified bool        `json:"verified"`
	Step     models.Step `json:"step"`
}

type RecordAnswerRequest struct {
	QuestionID string            `json:"question_id" validate:"required"`
	Kind       models.AnswerKind `json:"kind" validate:"required,answer_kind"`
	Most       string            `json:"most,omitempty"`
	Least      string            `json:"least,omitempty"`
	Selected   string            `json:"selected,omitempty"`
}

func (r *RecordAnswerRequest) toAnswer() models.Answer {
	if r.Kind == models.AnswerRankedPair {
		return models.NewRankedPairAnswer(r.Most, r.Least)
	}
	return models.NewSingleChoiceAnswer(r.Selected)
}

// ===== HANDLERS =====

// OpenSession resolves the session for a token and returns its state.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	token, ok := TokenParam(c)
	if !ok {
		return
	}

	session, err := h.manager.Open(c.Request.Context(), token)
	if err != nil && session == nil {
		h.RespondWithError(c, http.StatusBadGateway, "Failed to resolve session", err)
		return
	}
	// A session in the Error step is still returned so the client can
	// render the failure.
	h.respondWithState(c, session)
}

// GetSession returns the current state of an opened session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	h.respondWithState(c, session)
}

// Verify checks the candidate's identity number.
func (h *SessionHandler) Verify(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	verified := session.Verify(req.IdentityNumber)
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Verification processed",
		Data:    VerifyResponse{Verified: verified, Step: session.Step()},
	})
}

// StartTest leaves the reminder screen.
func (h *SessionHandler) StartTest(c *gin.Context) {
	h.trigger(c, func(session *engine.Session) error {
		return session.StartTest(c.Request.Context())
	})
}

// StartSection proceeds from the section announcement into the quiz.
func (h *SessionHandler) StartSection(c *gin.Context) {
	h.trigger(c, func(session *engine.Session) error {
		return session.StartSection(c.Request.Context())
	})
}

// RecordAnswer captures one answer for the active section.
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var req RecordAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
		return
	}

	stored, err := session.RecordAnswer(c.Request.Context(), req.QuestionID, req.toAnswer())
	if err != nil {
		h.respondWithEngineError(c, err, "Failed to record answer")
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Answer recorded", stored)
}

// ToggleFlag flips the review marker on a question.
func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	questionID := c.Param("question_id")

	flagged, err := session.ToggleFlag(c.Request.Context(), questionID)
	if err != nil {
		h.respondWithEngineError(c, err, "Failed to toggle flag")
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Flag toggled", gin.H{"flagged": flagged})
}

// FinishSection ends the active section.
func (h *SessionHandler) FinishSection(c *gin.Context) {
	h.trigger(c, func(session *engine.Session) error {
		return session.FinishSection(c.Request.Context())
	})
}

// Advance moves past a finished section: next section, next test, or the
// final submission.
func (h *SessionHandler) Advance(c *gin.Context) {
	h.trigger(c, func(session *engine.Session) error {
		return session.Advance(c.Request.Context())
	})
}

// AbandonSession discards in-memory progress for a token.
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	token, ok := TokenParam(c)
	if !ok {
		return
	}
	h.manager.Discard(token)
	h.RespondWithSuccess(c, http.StatusOK, "Session discarded", nil)
}

// ===== HELPERS =====

func (h *SessionHandler) lookup(c *gin.Context) (*engine.Session, bool) {
	token, ok := TokenParam(c)
	if !ok {
		return nil, false
	}
	session, err := h.manager.Get(token)
	if err != nil {
		h.RespondWithError(c, http.StatusNotFound, "Session not found", err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) trigger(c *gin.Context, fn func(*engine.Session) error) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := fn(session); err != nil {
		h.respondWithEngineError(c, err, "Transition failed")
		return
	}
	h.respondWithState(c, session)
}

func (h *SessionHandler) respondWithState(c *gin.Context, session *engine.Session) {
	state, err := session.State(c.Request.Context())
	if err != nil {
		h.RespondWithError(c, http.StatusInternalServerError, "Failed to load session state", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "OK", Data: state})
}

func (h *SessionHandler) respondWithEngineError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, engine.ErrSectionIncomplete):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Cannot finish yet", Code: "SECTION_INCOMPLETE"})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Action not allowed in current step", Code: "INVALID_TRANSITION"})
	case errors.Is(err, engine.ErrSessionCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Session already completed", Code: "SESSION_COMPLETED"})
	case errors.Is(err, engine.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Question not found in current section", Code: "QUESTION_NOT_FOUND"})
	case errors.Is(err, engine.ErrAnswerKindMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Answer variant does not match section type", Code: "ANSWER_KIND_MISMATCH"})
	case errors.Is(err, store.ErrFlagsNotSupported):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Section type does not support review flags", Code: "FLAGS_NOT_SUPPORTED"})
	case errors.Is(err, gateway.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Session token is invalid", Code: "TOKEN_INVALID"})
	default:
		h.RespondWithError(c, http.StatusBadGateway, message, err)
	}
}
