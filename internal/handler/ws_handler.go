package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/middleware"
	"github.com/mockai/mockai-backend/internal/proctor"
	"github.com/mockai/mockai-backend/internal/response"
	"github.com/mockai/mockai-backend/internal/service"
	"github.com/mockai/mockai-backend/internal/telemetry"
	ws "github.com/mockai/mockai-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live interview over a WebSocket.
type WSHandler struct {
	interviewService *service.InterviewService
	metrics          *telemetry.Metrics
	liveCfg          service.LiveConfig
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	interviewService *service.InterviewService,
	metrics *telemetry.Metrics,
	liveCfg service.LiveConfig,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		interviewService: interviewService,
		metrics:          metrics,
		liveCfg:          liveCfg,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// InterviewStream godoc
// WS /ws/v1/interviews/:id/stream?token=...
// Drives narration, answers and proctoring for one candidate connection.
func (h *WSHandler) InterviewStream(c *gin.Context) {
	id, _ := middleware.GetInterviewID(c)
	ctx := c.Request.Context()

	iv, err := h.interviewService.Get(ctx, id)
	if errors.Is(err, service.ErrInterviewNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to load interview")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if err := h.interviewService.EnsureOpen(ctx, iv); err != nil {
		if errors.Is(err, service.ErrInterviewFinished) {
			response.Fail(c, http.StatusConflict, response.ErrInterviewFinished)
			return
		}
		h.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to check interview state")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	lock, err := h.interviewService.AcquireLive(ctx, id)
	if errors.Is(err, service.ErrInterviewLive) {
		response.Fail(c, http.StatusConflict, response.ErrInterviewLive)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to acquire live lock")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			h.log.Warn().Err(err).Str("interview_id", id.String()).Msg("Failed to release live lock")
		}
	}()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("interview_id", id.String()).Logger()
	client := ws.NewClient(conn)

	live := service.NewLiveInterview(ctx, iv, h.interviewService.History(ctx, iv),
		client, h.interviewService, h.metrics, h.liveCfg, wsLog)
	defer live.Close()

	h.interviewService.Announce(ctx, id, "joined")
	defer h.interviewService.Announce(context.Background(), id, "left")

	wsLog.Info().Str("status", string(iv.Status)).Msg("Candidate connected")
	live.SendState()

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if errors.Is(err, ws.ErrInvalidPayload) {
			_ = client.SendError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		if msg.Action == ws.ActionPing {
			err := lock.Refresh(ctx)
			if errors.Is(err, service.ErrLiveLockLost) {
				wsLog.Warn().Msg("Live lock lost, closing connection")
				_ = client.SendError(string(response.ErrInterviewLive), response.GetMessage(response.ErrInterviewLive))
				break
			}
			if err != nil {
				wsLog.Warn().Err(err).Msg("Failed to refresh live lock")
			}
		}

		if err := live.Dispatch(ctx, msg); err != nil {
			code := liveErrorCode(err)
			if code == response.ErrInternal {
				wsLog.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
			} else {
				wsLog.Debug().Err(err).Str("action", string(msg.Action)).Msg("Action rejected")
			}
			_ = client.SendError(string(code), response.GetMessage(code))
		}
	}
}

// liveErrorCode maps a rejected action to the code sent to the client.
func liveErrorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, interview.ErrAlreadyStarted):
		return response.ErrInterviewStarted
	case errors.Is(err, interview.ErrNotStarted):
		return response.ErrInterviewNotStarted
	case errors.Is(err, interview.ErrNarrating):
		return response.ErrNarrationInProgress
	case errors.Is(err, interview.ErrFinished):
		return response.ErrInterviewFinished
	case errors.Is(err, proctor.ErrFullscreenDenied):
		return response.ErrFullscreenDenied
	case errors.Is(err, service.ErrUnknownAction):
		return response.ErrUnknownAction
	case errors.Is(err, ws.ErrInvalidPayload):
		return response.ErrInvalidPayload
	default:
		return response.ErrInternal
	}
}
