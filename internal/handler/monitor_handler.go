package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/middleware"
	"github.com/mockai/mockai-backend/internal/response"
	"github.com/mockai/mockai-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

var (
	ssePrefix = []byte("data: ")
	sseSuffix = []byte("\n\n")
	ssePing   = []byte(`{"type":"ping"}`)
)

// MonitorHandler streams a live interview to an observer.
type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorInterviewSSE godoc
// GET /api/v1/interviews/:id/monitor?token=...
// Sends a snapshot, then forwards every state, violation and lifecycle event
// published for the interview.
func (h *MonitorHandler) MonitorInterviewSSE(c *gin.Context) {
	id, _ := middleware.GetInterviewID(c)
	reqCtx := c.Request.Context()

	// Subscribe before reading the snapshot so nothing published in between is lost
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.InterviewMonitorChannel(id.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	snapCtx, cancel := context.WithTimeout(reqCtx, snapshotTimeout)
	snapshot, err := h.monitorService.Snapshot(snapCtx, id)
	cancel()
	if errors.Is(err, service.ErrInterviewNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to build monitor snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.writeEvent(c, service.MonitorMessage{
		Type:        "snapshot",
		InterviewID: id.String(),
		At:          time.Now().UTC(),
		Data:        snapshot,
	})

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Info().Str("interview_id", id.String()).Msg("Observer attached")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("interview_id", id.String()).Msg("Observer detached")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON
			h.writeData(c, []byte(msg.Payload))

		case <-keepAlive.C:
			h.writeData(c, ssePing)
		}
	}
}

// writeEvent frames v like the messages relayed from pub/sub.
func (h *MonitorHandler) writeEvent(c *gin.Context, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	h.writeData(c, payload)
}

func (h *MonitorHandler) writeData(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write(ssePrefix)
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write(sseSuffix)
	c.Writer.Flush()
}
