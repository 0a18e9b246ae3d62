package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/lessonflow-backend/internal/sse"
)

// FlowNotifier fans flow engine updates out to the user's SSE channel.
type FlowNotifier interface {
	Publish(userID uuid.UUID, event string, payload map[string]any)
}

type flowNotifier struct {
	emit SSEEmitter
}

func NewFlowNotifier(emit SSEEmitter) FlowNotifier {
	return &flowNotifier{emit: emit}
}

func (n *flowNotifier) Publish(userID uuid.UUID, event string, payload map[string]any) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEvent(event),
		Data:    payload,
	})
}
