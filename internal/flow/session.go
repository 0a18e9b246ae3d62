package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/yungbote/lessonflow-backend/internal/logger"
	apperrors "github.com/yungbote/lessonflow-backend/internal/pkg/errors"
)

// Deps are the collaborators and settings a session needs. The registry
// injects one set shared by every session.
type Deps struct {
	Clock       clock.Clock
	Log         *logger.Logger
	Notifier    NotificationSink
	Content     ContentProvider
	Classifier  Classifier
	Persistence PersistenceSink
	Pacing      Pacing
}

// session is the single thread of control for one (user, lesson) flow.
// Every mutation of the owned Flow happens on the run goroutine, fed by a
// bounded inbox; timers and collaborator callbacks only post events.
type session struct {
	flow     *Flow
	machine  *Machine
	timeline *timelineScheduler

	deps    Deps
	log     *logger.Logger
	baseCtx context.Context

	inbox   chan Event
	closeCh chan struct{}
	done    chan struct{}

	closeOnce sync.Once

	idleTimer *clock.Timer
	idleGen   uint64
	idleSent  bool

	// onRelease removes the session from the registry's keyed collection.
	// It must only touch that collection, never the session itself.
	onRelease func()
}

func newSession(baseCtx context.Context, userID, lessonID, sessionID uuid.UUID, deps Deps, onRelease func()) *session {
	s := &session{
		flow:      newFlow(userID, lessonID, sessionID, deps.Clock.Now()),
		deps:      deps,
		log:       deps.Log.With("component", "flow_session", "user_id", userID.String(), "lesson_id", lessonID.String()),
		baseCtx:   baseCtx,
		inbox:     make(chan Event, deps.Pacing.InboxSize),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
		onRelease: onRelease,
	}
	s.timeline = newTimelineScheduler(deps.Clock, deps.Pacing, s.post, timelineEffects{
		onBeat:         s.onBeat,
		onComplete:     s.onTimelineComplete,
		onAudioTimeout: s.onAudioTimeout,
	})
	s.machine = newMachine(s.transitionTable(), deps.Clock, s.log, s.onStateChanged)
	return s
}

// post delivers an event into the inbox. After close it silently drops,
// which is what keeps cancelled timers from ever surfacing stale events.
func (s *session) post(ev Event) bool {
	select {
	case <-s.closeCh:
		return false
	default:
	}
	select {
	case <-s.closeCh:
		return false
	case s.inbox <- ev:
		return true
	}
}

func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.closeCh:
			s.teardown()
			return
		default:
		}
		select {
		case <-s.closeCh:
			s.teardown()
			return
		case ev := <-s.inbox:
			s.dispatch(ev)
			if s.flow.CurrentState.Terminal() {
				s.closeOnce.Do(func() { close(s.closeCh) })
				s.teardown()
				if s.onRelease != nil {
					s.onRelease()
				}
				return
			}
		}
	}
}

// Close stops the session synchronously: when it returns, all owned timers
// are cancelled, a terminal snapshot has been offered to the persistence
// sink, and no further notifications will be published.
func (s *session) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
	<-s.done
}

func (s *session) teardown() {
	s.timeline.Stop()
	s.stopIdleTimer()
	if s.deps.Persistence != nil {
		if err := s.deps.Persistence.SaveSnapshot(s.baseCtx, s.snapshot()); err != nil {
			s.log.Warn("terminal snapshot save failed", "error", err)
		}
	}
}

// dispatch processes exactly one event. It runs only on the run goroutine;
// an event's full effect, including transitions its action triggers
// internally, completes before the next event is taken from the inbox.
func (s *session) dispatch(ev Event) {
	if !ev.internal {
		s.flow.bumpEngagement(0.5)
		s.rearmIdleTimer()
	}

	switch ev.Name {
	case eventBeatTimer:
		if p, ok := ev.Payload.(beatTimerPayload); ok {
			s.timeline.onTimerFired(p.gen)
		}
	case eventIdleTimer:
		if p, ok := ev.Payload.(idleTimerPayload); ok {
			s.onIdleTimer(p.gen)
		}
	case eventJumpTo:
		if p, ok := ev.Payload.(jumpToPayload); ok {
			s.handleJump(p.Position)
		}
	case eventSetSpeed:
		if p, ok := ev.Payload.(setSpeedPayload); ok {
			s.handleSetSpeed(p.Speed)
		}
	case eventGetState:
		if p, ok := ev.Payload.(getStatePayload); ok {
			p.reply <- s.snapshot()
		}
	case EventQuestion:
		s.handleInterruption(ev)
	default:
		if err := s.machine.Transition(s.baseCtx, s.flow, ev); err != nil {
			if errors.Is(err, apperrors.ErrInvalidTransition) {
				s.log.Warn("invalid transition ignored", "event", ev.Name, "state", s.flow.CurrentState)
				s.publishRecoverable("invalid_transition", ev.Name)
			}
		}
	}
}

func (s *session) onStateChanged(f *Flow, ev Event, from, to State) {
	f.IsPaused = to == StatePaused
	if from.Presenting() != to.Presenting() {
		s.rearmIdleTimer()
	}
	s.publish("state_changed", map[string]any{
		"from":  from,
		"to":    to,
		"event": ev.Name,
	})
	if s.deps.Persistence != nil {
		snap := s.snapshot()
		go func() {
			if err := s.deps.Persistence.RecordTransition(s.baseCtx, snap, ev.Name, from, to); err != nil {
				s.log.Debug("transition log write failed", "error", err)
			}
		}()
	}
}

func (s *session) publish(event string, payload map[string]any) {
	if s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.Publish(s.flow.UserID, event, payload)
}

// publishRecoverable surfaces a friendly error with recovery options
// instead of a raw internal error.
func (s *session) publishRecoverable(reason, event string) {
	s.publish("flow_error", map[string]any{
		"reason":   reason,
		"event":    event,
		"state":    s.flow.CurrentState,
		"recovery": []string{"retry", "restart"},
	})
}

// ---- timeline effects ----

func (s *session) onBeat(b TimelinePoint) {
	switch b.Kind {
	case BeatSlideStart:
		s.flow.RevealedPoints = nil
		slide := s.flow.currentSlide()
		title := ""
		if slide != nil {
			title = slide.Title
		}
		s.publish("slide_started", map[string]any{
			"section": s.flow.Cursors.Section,
			"slide":   s.flow.Cursors.Slide,
			"title":   title,
		})
	case BeatAnimation:
		s.publish("animation", map[string]any{"point": b.PointIndex})
	case BeatPointReveal:
		s.flow.Cursors.Point = b.PointIndex
		s.flow.RevealedPoints = append(s.flow.RevealedPoints, b.PointIndex)
		text := ""
		if slide := s.flow.currentSlide(); slide != nil && b.PointIndex < len(slide.Points) {
			text = slide.Points[b.PointIndex].Text
		}
		s.publish("point_revealed", map[string]any{"point": b.PointIndex, "text": text})
	case BeatAudioSegment:
		s.publish("audio_play", map[string]any{"point": b.PointIndex, "audio_ref": b.AudioRef})
		if err := s.machine.Transition(s.baseCtx, s.flow, Event{Name: EventAudioStarted, internal: true}); err != nil {
			s.log.Warn("audio start transition rejected", "error", err)
		}
	case BeatPause:
		s.log.Debug("inter-point pause", "position", s.timeline.Position())
	}
}

func (s *session) onTimelineComplete() {
	if err := s.machine.Transition(s.baseCtx, s.flow, Event{Name: EventRevealComplete, internal: true}); err != nil {
		s.log.Warn("reveal complete transition rejected", "error", err)
	}
}

// onAudioTimeout fires when the external audio-finished signal never
// arrived. Degraded, not fatal: the beat completes on the estimate.
func (s *session) onAudioTimeout(b TimelinePoint) {
	s.log.Warn("audio completion signal missing, falling back to estimated duration",
		"audio_ref", b.AudioRef, "duration_ms", b.DurationMs)
	if err := s.machine.Transition(s.baseCtx, s.flow, Event{Name: EventAudioFinished, internal: true}); err != nil {
		s.log.Warn("audio fallback transition rejected", "error", err)
	}
}

// ---- control operations without state-machine involvement ----

func (s *session) handleJump(pos int) {
	if err := s.timeline.JumpTo(pos); err != nil {
		s.log.Warn("jump rejected", "position", pos, "error", err)
		s.publishRecoverable("invalid_jump", eventJumpTo)
		return
	}
	s.publish("jumped", map[string]any{"position": pos})
}

func (s *session) handleSetSpeed(speed float64) {
	if speed <= 0 {
		s.publishRecoverable("invalid_speed", eventSetSpeed)
		return
	}
	s.timeline.SetSpeed(speed)
	s.flow.PlaybackSpeed = speed
	s.publish("speed_changed", map[string]any{"speed": speed})
}

// ---- idle detection ----

// rearmIdleTimer arms the single idle timer while presenting and disarms it
// otherwise. Any inbound event or presenting-state change re-arms it; the
// idle check fires at most once per quiet period and never escalates.
func (s *session) rearmIdleTimer() {
	s.stopIdleTimer()
	s.idleSent = false
	if !s.flow.CurrentState.Presenting() {
		return
	}
	gen := s.idleGen
	s.idleTimer = s.deps.Clock.AfterFunc(s.deps.Pacing.IdleTimeout(), func() {
		s.post(Event{Name: eventIdleTimer, Payload: idleTimerPayload{gen: gen}, internal: true})
	})
}

func (s *session) stopIdleTimer() {
	s.idleGen++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *session) onIdleTimer(gen uint64) {
	if gen != s.idleGen || s.idleSent {
		return
	}
	s.idleTimer = nil
	if !s.flow.CurrentState.Presenting() {
		return
	}
	s.idleSent = true
	s.publish("idle_check", map[string]any{
		"state": s.flow.CurrentState,
		"slide": s.flow.Cursors.Slide,
	})
}

// ---- snapshot ----

func (s *session) snapshot() Snapshot {
	f := s.flow
	history := make([]HistoryEntry, len(f.history))
	copy(history, f.history)
	revealed := make([]int, len(f.RevealedPoints))
	copy(revealed, f.RevealedPoints)
	return Snapshot{
		UserID:           f.UserID,
		LessonID:         f.LessonID,
		SessionID:        f.SessionID,
		CurrentState:     f.CurrentState,
		PreviousState:    f.PreviousState,
		Cursors:          f.Cursors,
		RevealedPoints:   revealed,
		TimelinePosition: s.timeline.Position(),
		TimelineLength:   s.timeline.Length(),
		BeatOffset:       s.timeline.ElapsedInBeat(),
		PlaybackSpeed:    f.PlaybackSpeed,
		IsPaused:         f.IsPaused,
		IsInterrupted:    f.IsInterrupted,
		ModeSelected:     f.ModeSelected,
		Mode:             f.Mode,
		VoiceEnabled:     f.VoiceEnabled,
		AutoAdvance:      f.AutoAdvance,
		ResumeDepth:      len(f.resumeStack),
		Metrics:          f.Metrics,
		History:          history,
		StartedAt:        f.StartedAt,
	}
}
