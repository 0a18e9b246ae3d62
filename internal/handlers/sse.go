package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lessonflow-backend/internal/logger"
	"github.com/yungbote/lessonflow-backend/internal/requestdata"
	"github.com/yungbote/lessonflow-backend/internal/sse"
)

type SSEHandler struct {
	Log *logger.Logger
	Hub *sse.SSEHub

	mu      sync.RWMutex
	clients map[uuid.UUID]*sse.SSEClient // key: client ID
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{
		Log:     log,
		Hub:     hub,
		clients: make(map[uuid.UUID]*sse.SSEClient),
	}
}

// GET /api/sse
func (h *SSEHandler) SSEStream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	userID := rd.UserID

	client := h.Hub.NewSSEClient(userID)
	client.Logger = h.Log.With("SSEClientID", client.ID)
	h.Log.Info("SSEStream open", "user_id", userID.String(), "client_id", client.ID.String())

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	// Every connection is subscribed to the user's own channel; flow updates
	// are published there.
	h.Hub.AddChannel(client, userID.String())

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	h.Hub.CloseClient(client)
}
