package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aescanero/routerd/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator endpoint, reachable on the service port only
	},
}

// Handler streams request lifecycle events to operator WebSocket
// connections.
type Handler struct {
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleEventStream streams the event bus to the connection, optionally
// filtered by the "request" query parameter.
func (h *Handler) HandleEventStream(c *gin.Context) {
	requestID := c.Query("request")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("request_filter", requestID),
		zap.String("client", c.ClientIP()))

	eventCh := make(chan ports.Event, 16)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.subscribe(ctx, eventCh)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if requestID != "" && event.RequestID != requestID {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// subscribe registers a bus handler feeding the connection channel.
func (h *Handler) subscribe(ctx context.Context, ch chan<- ports.Event) {
	eventHandler := func(ctx context.Context, event ports.Event) error {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// channel full, skip event
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	if err := h.eventBus.Subscribe(ctx, ports.TopicRequestEvents, eventHandler); err != nil {
		h.logger.Error("failed to subscribe to events",
			zap.String("topic", ports.TopicRequestEvents),
			zap.Error(err))
	}
}
