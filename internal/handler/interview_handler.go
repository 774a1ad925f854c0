package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mockai/mockai-backend/internal/middleware"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/response"
	"github.com/mockai/mockai-backend/internal/service"
	"github.com/mockai/mockai-backend/internal/validator"
	"github.com/rs/zerolog"
)

// InterviewHandler handles interview setup and results.
type InterviewHandler struct {
	interviewService *service.InterviewService
	log              zerolog.Logger
}

// NewInterviewHandler creates a new InterviewHandler.
func NewInterviewHandler(interviewService *service.InterviewService, log zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		interviewService: interviewService,
		log:              log.With().Str("component", "interview_handler").Logger(),
	}
}

// CreateInterview godoc
// POST /api/v1/interviews
// Generates the question set and returns the interview with its tokens.
// Question generation never fails the request; fallbacks are reported in
// question_origin.
func (h *InterviewHandler) CreateInterview(c *gin.Context) {
	var req model.CreateInterviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.interviewService.Create(c.Request.Context(), &req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create interview")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, res)
}

// GetInterview godoc
// GET /api/v1/interviews/:id
func (h *InterviewHandler) GetInterview(c *gin.Context) {
	id, _ := middleware.GetInterviewID(c)

	iv, err := h.interviewService.Get(c.Request.Context(), id)
	if err != nil {
		h.failInterview(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"interview": iv})
}

// GetResult godoc
// GET /api/v1/interviews/:id/result
// Returns the final violation count, integrity score and violation log.
func (h *InterviewHandler) GetResult(c *gin.Context) {
	id, _ := middleware.GetInterviewID(c)

	res, err := h.interviewService.Result(c.Request.Context(), id)
	if err != nil {
		h.failInterview(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

func (h *InterviewHandler) failInterview(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInterviewNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrResultNotReady):
		response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
	default:
		h.log.Error().Err(err).Msg("Interview lookup failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
