package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"

	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/services/events"
	"cattle-worker-go/internal/services/messaging"
)

// EventsHandler pushes registration events to browsers and triggers reloads.
type EventsHandler struct {
	broadcaster *events.Broadcaster
	reload      messaging.ReloadFunc
}

func NewEventsHandler(broadcaster *events.Broadcaster, reload messaging.ReloadFunc) *EventsHandler {
	return &EventsHandler{broadcaster: broadcaster, reload: reload}
}

// Stream upgrades to a WebSocket and forwards every registration event as JSON
// @Summary Registration event stream
// @Description WebSocket; each message is a RegistrationEvent with event "auto_registered"
// @Tags events
// @Success 101 {object} models.RegistrationEvent
// @Router /api/camera/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logging.Warn(c).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := events.NewWebSocketSubscriber(conn)
	h.broadcaster.Subscribe(sub)
	defer h.broadcaster.Unsubscribe(sub.ID())

	logging.Info(c).Str("subscriber", sub.ID()).Msg("Event subscriber connected")

	// clients never send; CloseRead answers pings and ends ctx on disconnect
	ctx := conn.CloseRead(c.Request.Context())
	<-ctx.Done()

	sub.Close("bye")
	logging.Info(c).Str("subscriber", sub.ID()).Msg("Event subscriber disconnected")
}

// Reload refreshes identity banks and the no-photo set from the store
// @Summary Reload identity banks
// @Tags events
// @Accept json
// @Produce json
// @Param request body messaging.ReloadRequest false "Optional reload scope"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/camera/reload [post]
func (h *EventsHandler) Reload(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	req, err := messaging.DecodeReload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "http"
	}

	if err := h.reload(c.Request.Context(), req); err != nil {
		logging.Error(c).Err(err).Msg("Reload failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "reloaded"})
}

// Stats reports the broadcaster counters
// @Summary Event broadcaster stats
// @Tags events
// @Produce json
// @Success 200 {object} events.Stats
// @Router /api/camera/events/stats [get]
func (h *EventsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.broadcaster.Stats())
}
