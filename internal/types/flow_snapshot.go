package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FlowSnapshot is the last observed state of one lesson flow, one row per
// (user, lesson), overwritten on every save.
type FlowSnapshot struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_flow_snapshot_pair,unique" json:"user_id"`
	LessonID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_flow_snapshot_pair,unique" json:"lesson_id"`
	SessionID     uuid.UUID      `gorm:"type:uuid;not null" json:"session_id"`
	CurrentState  string         `gorm:"column:current_state;not null" json:"current_state"`
	PreviousState string         `gorm:"column:previous_state" json:"previous_state"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Terminal      bool           `gorm:"column:terminal;not null;default:false" json:"terminal"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (FlowSnapshot) TableName() string { return "flow_snapshot" }
