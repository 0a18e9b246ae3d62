package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FlowEvent is an append-only log row for every state change a flow makes.
type FlowEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	LessonID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"lesson_id"`
	SessionID uuid.UUID      `gorm:"type:uuid;not null" json:"session_id"`
	Event     string         `gorm:"column:event;not null" json:"event"`
	FromState string         `gorm:"column:from_state;not null" json:"from_state"`
	ToState   string         `gorm:"column:to_state;not null" json:"to_state"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (FlowEvent) TableName() string { return "flow_event" }
