package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/yungbote/lessonflow-backend/internal/logger"
	apperrors "github.com/yungbote/lessonflow-backend/internal/pkg/errors"
)

type sessionKey struct {
	userID   uuid.UUID
	lessonID uuid.UUID
}

// Registry holds one live session per (user, lesson) and is the inbound
// surface of the flow engine. The keyed map is the only structure shared
// across sessions; its lock is never held while a session does work.
type Registry struct {
	mu       sync.Mutex
	sessions map[sessionKey]*session

	deps    Deps
	baseCtx context.Context
	log     *logger.Logger
}

func NewRegistry(ctx context.Context, deps Deps) (*Registry, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Content == nil {
		return nil, fmt.Errorf("content provider required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("classifier required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Pacing == (Pacing{}) {
		deps.Pacing = DefaultPacing()
	}
	if deps.Pacing.InboxSize <= 0 {
		deps.Pacing.InboxSize = DefaultPacing().InboxSize
	}
	return &Registry{
		sessions: make(map[sessionKey]*session),
		deps:     deps,
		baseCtx:  ctx,
		log:      deps.Log.With("service", "FlowRegistry"),
	}, nil
}

// Start creates the flow for (user, lesson) and begins initialization.
// Calling it again while the flow is live returns the existing flow's
// snapshot idempotently.
func (r *Registry) Start(userID, lessonID, sessionID uuid.UUID) (Snapshot, error) {
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("%w: user and lesson ids required", apperrors.ErrInvalidArgument)
	}
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}
	k := sessionKey{userID: userID, lessonID: lessonID}

	r.mu.Lock()
	s, existed := r.sessions[k]
	if !existed {
		s = newSession(r.baseCtx, userID, lessonID, sessionID, r.deps, func() { r.release(k) })
		r.sessions[k] = s
		go s.run()
	}
	r.mu.Unlock()

	if existed {
		r.log.Debug("start requested for live flow, returning existing", "user_id", userID.String(), "lesson_id", lessonID.String())
		return r.querySnapshot(s)
	}

	r.log.Info("flow created", "user_id", userID.String(), "lesson_id", lessonID.String())
	if !s.post(Event{Name: EventStart}) {
		return Snapshot{}, apperrors.ErrSessionClosed
	}
	return r.querySnapshot(s)
}

// HandleEvent validates and forwards an external event to the session.
func (r *Registry) HandleEvent(userID, lessonID uuid.UUID, ev Event) error {
	if err := ValidateInbound(ev); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	s, err := r.find(userID, lessonID)
	if err != nil {
		return err
	}
	if !s.post(ev) {
		return apperrors.ErrSessionClosed
	}
	return nil
}

// ControlOp is one playback control operation.
type ControlOp struct {
	Op       string  `json:"op"`
	Position int     `json:"position,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

const (
	OpPause       = "pause"
	OpResume      = "resume"
	OpNext        = "next"
	OpPrevious    = "previous"
	OpRepeat      = "repeat"
	OpJumpToPoint = "jump_to_point"
	OpSetSpeed    = "set_speed"
)

// Control forwards a playback control. Pause/resume and slide navigation go
// through the state machine; jump and speed apply to the timeline directly
// without a state change.
func (r *Registry) Control(userID, lessonID uuid.UUID, op ControlOp) error {
	s, err := r.find(userID, lessonID)
	if err != nil {
		return err
	}

	var ev Event
	switch strings.TrimSpace(strings.ToLower(op.Op)) {
	case OpPause:
		ev = Event{Name: EventPause}
	case OpResume:
		ev = Event{Name: EventResume}
	case OpNext:
		ev = Event{Name: EventNextSlide}
	case OpPrevious:
		ev = Event{Name: EventPreviousSlide}
	case OpRepeat:
		ev = Event{Name: EventRepeatSlide}
	case OpJumpToPoint:
		ev = Event{Name: eventJumpTo, Payload: jumpToPayload{Position: op.Position}}
	case OpSetSpeed:
		if op.Speed <= 0 {
			return fmt.Errorf("%w: speed must be positive", apperrors.ErrInvalidArgument)
		}
		ev = Event{Name: eventSetSpeed, Payload: setSpeedPayload{Speed: op.Speed}}
	default:
		return fmt.Errorf("%w: unknown control op %q", apperrors.ErrInvalidArgument, op.Op)
	}

	if !s.post(ev) {
		return apperrors.ErrSessionClosed
	}
	return nil
}

// Stop cancels all timers owned by the flow, persists a terminal snapshot
// and removes the entry. A second stop for the same pair is a no-op.
func (r *Registry) Stop(userID, lessonID uuid.UUID) error {
	k := sessionKey{userID: userID, lessonID: lessonID}
	r.mu.Lock()
	s, ok := r.sessions[k]
	delete(r.sessions, k)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s.Close()
	r.log.Info("flow stopped", "user_id", userID.String(), "lesson_id", lessonID.String())
	return nil
}

// GetSnapshot returns a read-only view of the flow state. The request goes
// through the session inbox, so it observes every previously posted event.
func (r *Registry) GetSnapshot(userID, lessonID uuid.UUID) (Snapshot, error) {
	s, err := r.find(userID, lessonID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.querySnapshot(s)
}

// Len reports the number of live flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every live flow.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for k, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, k)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) find(userID, lessonID uuid.UUID) (*session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionKey{userID: userID, lessonID: lessonID}]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no flow for user %s lesson %s", apperrors.ErrNotFound, userID, lessonID)
	}
	return s, nil
}

func (r *Registry) querySnapshot(s *session) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !s.post(Event{Name: eventGetState, Payload: getStatePayload{reply: reply}, internal: true}) {
		return Snapshot{}, apperrors.ErrSessionClosed
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, apperrors.ErrSessionClosed
	}
}

func (r *Registry) release(k sessionKey) {
	r.mu.Lock()
	delete(r.sessions, k)
	r.mu.Unlock()
}
