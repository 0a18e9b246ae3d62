package flow

import (
	"context"

	"github.com/google/uuid"
)

// NotificationSink pushes real-time updates outward. Publishing is
// fire-and-forget: failures are logged by the implementation and never
// propagate into transition handling.
type NotificationSink interface {
	Publish(userID uuid.UUID, event string, payload map[string]any)
}

// ContentProvider supplies lesson content. GetLessonStructure is called once
// while the flow initializes; GetSlideBeats is called lazily each time a
// slide becomes current.
type ContentProvider interface {
	GetLessonStructure(ctx context.Context, lessonID uuid.UUID) (*LessonStructure, error)
	GetSlideBeats(ctx context.Context, lessonID uuid.UUID, sectionIndex, slideIndex int) (*SlideBeats, error)
}

// DecisionAction is the classifier's verdict on an interrupting input.
type DecisionAction string

const (
	ActionAnswer      DecisionAction = "answer"
	ActionClarify     DecisionAction = "clarify"
	ActionRedirect    DecisionAction = "redirect"
	ActionEscalate    DecisionAction = "escalate"
	ActionPauseLesson DecisionAction = "pause_lesson"
)

// Decision is the classifier's contract: what to do with the interruption
// and at what depth to respond.
type Decision struct {
	Action        DecisionAction
	ResponseLevel string
}

// Classifier decides how to route an interrupting user input. The engine
// consumes only the decision; how it is produced is not its concern.
type Classifier interface {
	Classify(ctx context.Context, input string, snap Snapshot) (Decision, error)
}

// PersistenceSink stores a terminal snapshot when a flow stops or completes,
// and appends a log row per state change. Live session behavior never
// depends on its success.
type PersistenceSink interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	RecordTransition(ctx context.Context, snap Snapshot, event string, from, to State) error
}
