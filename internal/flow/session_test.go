package flow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/yungbote/lessonflow-backend/internal/logger"
)

type recordedEvent struct {
	name    string
	payload map[string]any
}

type spyNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *spyNotifier) Publish(userID uuid.UUID, event string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{name: event, payload: payload})
}

func (n *spyNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func (n *spyNotifier) countOf(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.name == name {
			c++
		}
	}
	return c
}

func (n *spyNotifier) has(name string) bool { return n.countOf(name) > 0 }

func (n *spyNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type stubContent struct {
	structure *LessonStructure
	beats     *SlideBeats
	err       error
}

func (c *stubContent) GetLessonStructure(ctx context.Context, lessonID uuid.UUID) (*LessonStructure, error) {
	return c.structure, c.err
}

func (c *stubContent) GetSlideBeats(ctx context.Context, lessonID uuid.UUID, sectionIndex, slideIndex int) (*SlideBeats, error) {
	return c.beats, nil
}

type stubClassifier struct {
	decision Decision
	err      error
}

func (c *stubClassifier) Classify(ctx context.Context, input string, snap Snapshot) (Decision, error) {
	if c.err != nil {
		return Decision{}, c.err
	}
	return c.decision, nil
}

func testStructure(sections, slides, points, pointDurationMs int) *LessonStructure {
	st := &LessonStructure{Title: "lesson"}
	for s := 0; s < sections; s++ {
		sec := Section{Title: fmt.Sprintf("section %d", s)}
		for sl := 0; sl < slides; sl++ {
			sec.Slides = append(sec.Slides, *testSlide(points, pointDurationMs, false))
		}
		st.Sections = append(st.Sections, sec)
	}
	return st
}

// sessionHarness drives a session synchronously on the test goroutine:
// dispatch directly, drain the inbox after every step, and advance the mock
// clock in small increments so rescheduled timers land on exact boundaries.
type sessionHarness struct {
	clk *clock.Mock
	s   *session
	n   *spyNotifier
	cls *stubClassifier
}

func newSessionHarness(t *testing.T, structure *LessonStructure) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		clk: clock.NewMock(),
		n:   &spyNotifier{},
		cls: &stubClassifier{decision: Decision{Action: ActionAnswer, ResponseLevel: "brief"}},
	}
	deps := Deps{
		Clock:      h.clk,
		Log:        logger.NewNop(),
		Notifier:   h.n,
		Content:    &stubContent{structure: structure},
		Classifier: h.cls,
		Pacing:     DefaultPacing(),
	}
	h.s = newSession(context.Background(), uuid.New(), uuid.New(), uuid.New(), deps, nil)
	return h
}

func (h *sessionHarness) drain() {
	for {
		select {
		case ev := <-h.s.inbox:
			h.s.dispatch(ev)
		default:
			return
		}
	}
}

func (h *sessionHarness) dispatch(ev Event) {
	h.s.dispatch(ev)
	h.drain()
}

func (h *sessionHarness) advance(d time.Duration) {
	step := 100 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.clk.Add(step)
		h.drain()
	}
}

func (h *sessionHarness) startPresentation(t *testing.T, autoAdvance bool) {
	t.Helper()
	h.dispatch(Event{Name: EventStart})
	h.dispatch(Event{Name: EventModeSelected, Payload: ModeSelectedPayload{Mode: "presentation", AutoAdvance: autoAdvance}})
	if h.s.flow.CurrentState != StateProgressiveRevealing {
		t.Fatalf("after mode selection: state %q, want %q", h.s.flow.CurrentState, StateProgressiveRevealing)
	}
}

func TestSessionFullLessonLifecycle(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 2, 2, 1000))
	h.startPresentation(t, true)

	// Two slides of 500 + 2*(300+1000) + 500 = 3600ms each.
	h.advance(8 * time.Second)

	if got := h.s.flow.CurrentState; got != StateLessonComplete {
		t.Fatalf("state %q, want %q", got, StateLessonComplete)
	}
	if got := h.n.countOf("slide_started"); got != 2 {
		t.Fatalf("slide_started published %d times, want 2", got)
	}
	if got := h.n.countOf("point_revealed"); got != 4 {
		t.Fatalf("point_revealed published %d times, want 4", got)
	}
	if !h.n.has("lesson_complete") {
		t.Fatalf("lesson_complete never published")
	}
}

func TestSessionInvalidEventIsNoOp(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 1, 1000))

	h.dispatch(Event{Name: EventQuizAnswer, Payload: QuizAnswerPayload{QuestionIndex: 0, Correct: true}})

	if got := h.s.flow.CurrentState; got != StateIdle {
		t.Fatalf("state %q after rejected event, want %q", got, StateIdle)
	}
	if !h.n.has("flow_error") {
		t.Fatalf("rejected event did not surface a recoverable error")
	}
}

func TestSessionInterruptionRoundTrip(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 3, 1000))
	h.startPresentation(t, false)

	// 500ms slide start, 300ms animation, then 200ms into point 0's reveal.
	h.advance(1 * time.Second)
	before := h.s.snapshot()

	h.dispatch(Event{Name: EventQuestion, Payload: QuestionPayload{Text: "why does this work?"}})

	if got := h.s.flow.CurrentState; got != StateAnsweringQuestion {
		t.Fatalf("state %q, want %q", got, StateAnsweringQuestion)
	}
	if !h.n.has("question_accepted") {
		t.Fatalf("question_accepted never published")
	}

	// Suspended: an arbitrarily long wait makes no progress.
	h.advance(5 * time.Second)
	if got := h.n.countOf("point_revealed"); got != 1 {
		t.Fatalf("points revealed while suspended: %d reveals, want 1", got)
	}

	h.dispatch(Event{Name: EventAnswerComplete})

	after := h.s.snapshot()
	if after.CurrentState != StateProgressiveRevealing {
		t.Fatalf("resumed into %q, want %q", after.CurrentState, StateProgressiveRevealing)
	}
	if after.TimelinePosition != before.TimelinePosition {
		t.Fatalf("timeline position %d after resume, want %d", after.TimelinePosition, before.TimelinePosition)
	}
	if after.BeatOffset != before.BeatOffset {
		t.Fatalf("beat offset %v after resume, want %v", after.BeatOffset, before.BeatOffset)
	}
	if h.s.flow.Metrics.Interruptions != 1 {
		t.Fatalf("interruption metric = %d, want 1", h.s.flow.Metrics.Interruptions)
	}

	// Playback continues through the rest of the beat and into the next point.
	h.advance(2 * time.Second)
	if got := h.n.countOf("point_revealed"); got < 2 {
		t.Fatalf("playback did not continue after resume")
	}
}

func TestSessionQuestionWhilePausedStaysPaused(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 3, 1000))
	h.startPresentation(t, false)

	// 200ms into point 0's reveal, then an explicit pause.
	h.advance(1 * time.Second)
	h.dispatch(Event{Name: EventPause})
	if got := h.s.flow.CurrentState; got != StatePaused {
		t.Fatalf("state %q after pause, want %q", got, StatePaused)
	}
	paused := h.s.snapshot()

	h.dispatch(Event{Name: EventQuestion, Payload: QuestionPayload{Text: "what does this term mean?"}})
	if got := h.s.flow.CurrentState; got != StateAnsweringQuestion {
		t.Fatalf("state %q, want %q", got, StateAnsweringQuestion)
	}

	// Answering returns to the pause, never to playback.
	h.dispatch(Event{Name: EventAnswerComplete})
	after := h.s.snapshot()
	if after.CurrentState != StatePaused {
		t.Fatalf("after answering a question asked while paused: state %q, want %q", after.CurrentState, StatePaused)
	}
	if !h.s.flow.IsPaused {
		t.Fatalf("IsPaused not restored after the interruption")
	}
	if after.BeatOffset != paused.BeatOffset {
		t.Fatalf("beat offset %v after answering, want %v", after.BeatOffset, paused.BeatOffset)
	}

	// Still paused: no playback progress until an explicit resume.
	reveals := h.n.countOf("point_revealed")
	h.advance(3 * time.Second)
	if got := h.n.countOf("point_revealed"); got != reveals {
		t.Fatalf("playback progressed while paused: %d reveals, want %d", got, reveals)
	}

	h.dispatch(Event{Name: EventResume})
	if got := h.s.flow.CurrentState; got != StateProgressiveRevealing {
		t.Fatalf("state %q after resume, want %q", got, StateProgressiveRevealing)
	}
	if got := h.s.snapshot().BeatOffset; got != paused.BeatOffset {
		t.Fatalf("beat offset %v after resume, want %v", got, paused.BeatOffset)
	}
	h.advance(2 * time.Second)
	if got := h.n.countOf("point_revealed"); got <= reveals {
		t.Fatalf("playback did not continue after the explicit resume")
	}
}

func TestSessionClassifierPausesLesson(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 2, 1000))
	h.startPresentation(t, false)
	h.cls.decision = Decision{Action: ActionPauseLesson}

	h.dispatch(Event{Name: EventQuestion, Payload: QuestionPayload{Text: "can we stop here"}})

	if got := h.s.flow.CurrentState; got != StatePaused {
		t.Fatalf("state %q, want %q", got, StatePaused)
	}
	if !h.s.flow.IsPaused {
		t.Fatalf("IsPaused not set in paused state")
	}
}

func TestSessionClassifierEscalates(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 2, 1000))
	h.startPresentation(t, false)
	h.cls.decision = Decision{Action: ActionEscalate}
	stateBefore := h.s.flow.CurrentState

	h.dispatch(Event{Name: EventQuestion, Payload: QuestionPayload{Text: "this makes no sense at all"}})

	if got := h.s.flow.CurrentState; got != stateBefore {
		t.Fatalf("escalation changed state to %q", got)
	}
	if !h.n.has("escalation") {
		t.Fatalf("escalation never published")
	}
}

func TestSessionClassifierFailureEntersError(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 2, 1000))
	h.startPresentation(t, false)
	h.cls.err = fmt.Errorf("model unavailable")

	h.dispatch(Event{Name: EventQuestion, Payload: QuestionPayload{Text: "what now?"}})

	if got := h.s.flow.CurrentState; got != StateError {
		t.Fatalf("state %q, want %q", got, StateError)
	}
	if !h.n.has("flow_error") {
		t.Fatalf("error state did not surface a recoverable error")
	}
}

func TestSessionQuizScoringClamped(t *testing.T) {
	h := newSessionHarness(t, testStructure(2, 1, 1, 1000))
	h.dispatch(Event{Name: EventStart})
	h.dispatch(Event{Name: EventModeSelected, Payload: ModeSelectedPayload{Mode: "chat"}})
	if h.s.flow.CurrentState != StateChatting {
		t.Fatalf("chat mode not entered: %q", h.s.flow.CurrentState)
	}
	h.dispatch(Event{Name: EventQuizStart})

	// A wrong answer at zero comprehension stays at zero.
	h.dispatch(Event{Name: EventQuizAnswer, Payload: QuizAnswerPayload{Correct: false}})
	if got := h.s.flow.Metrics.Comprehension; got != 0 {
		t.Fatalf("comprehension %v after wrong answer at floor, want 0", got)
	}

	for i := 0; i < 30; i++ {
		h.dispatch(Event{Name: EventQuizAnswer, Payload: QuizAnswerPayload{QuestionIndex: i, Correct: true}})
	}
	if got := h.s.flow.Metrics.Comprehension; got != 100 {
		t.Fatalf("comprehension %v after 30 correct answers, want ceiling 100", got)
	}
}

func TestSessionHistoryBounded(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 1, 1000))
	h.dispatch(Event{Name: EventStart})
	h.dispatch(Event{Name: EventModeSelected, Payload: ModeSelectedPayload{Mode: "chat"}})
	h.dispatch(Event{Name: EventQuizStart})

	for i := 0; i < 120; i++ {
		h.dispatch(Event{Name: EventQuizAnswer, Payload: QuizAnswerPayload{QuestionIndex: i, Correct: true}})
	}

	snap := h.s.snapshot()
	if len(snap.History) != historyLimit {
		t.Fatalf("history length %d, want trimmed to %d", len(snap.History), historyLimit)
	}
	last := snap.History[len(snap.History)-1]
	if last.Event != EventQuizAnswer {
		t.Fatalf("history tail is %q, want the most recent event", last.Event)
	}
}

func TestSessionJumpToPointRevealsOnlyTarget(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 5, 1000))
	h.startPresentation(t, false)

	target := -1
	for i, b := range h.s.timeline.Beats() {
		if b.Kind == BeatPointReveal && b.PointIndex == 2 {
			target = i
			break
		}
	}
	if target < 0 {
		t.Fatalf("no reveal beat for point 2")
	}

	h.n.reset()
	h.dispatch(Event{Name: eventJumpTo, Payload: jumpToPayload{Position: target}, internal: true})

	if got := h.n.countOf("point_revealed"); got != 1 {
		t.Fatalf("jump revealed %d points, want exactly the target", got)
	}
	if got := h.s.flow.Cursors.Point; got != 2 {
		t.Fatalf("point cursor %d after jump, want 2", got)
	}
	if !h.n.has("jumped") {
		t.Fatalf("jumped never published")
	}

	// Not paused: playback continues into point 3.
	h.advance(2 * time.Second)
	if got := h.s.flow.Cursors.Point; got < 3 {
		t.Fatalf("playback did not continue past the jump target, cursor at %d", got)
	}
}

func TestSessionSpeedChange(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 2, 1000))
	h.startPresentation(t, false)

	h.dispatch(Event{Name: eventSetSpeed, Payload: setSpeedPayload{Speed: 2.0}, internal: true})
	if got := h.s.flow.PlaybackSpeed; got != 2.0 {
		t.Fatalf("playback speed %v, want 2.0", got)
	}
	if !h.n.has("speed_changed") {
		t.Fatalf("speed_changed never published")
	}

	h.dispatch(Event{Name: eventSetSpeed, Payload: setSpeedPayload{Speed: -1}, internal: true})
	if got := h.s.flow.PlaybackSpeed; got != 2.0 {
		t.Fatalf("invalid speed was applied: %v", got)
	}
}

func TestSessionIdleCheckFiresOncePerQuietPeriod(t *testing.T) {
	h := newSessionHarness(t, testStructure(1, 1, 1, 1000*60*10))
	h.startPresentation(t, false)

	// The single ten-minute point outlives the 90s idle timeout.
	h.advance(DefaultPacing().IdleTimeout() + 10*time.Second)

	if got := h.n.countOf("idle_check"); got != 1 {
		t.Fatalf("idle_check published %d times, want exactly 1", got)
	}
}
