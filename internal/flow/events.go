package flow

import (
	"fmt"
	"strings"
)

// Event names accepted from the outside (API surface) or raised internally
// (content loading, timeline completion, timer fires).
const (
	EventStart            = "start"
	EventStructureLoaded  = "structure_loaded"
	EventModeSelected     = "mode_selected"
	EventRevealStarted    = "reveal_started"
	EventAudioStarted     = "audio_started"
	EventAudioFinished    = "audio_finished"
	EventRevealComplete   = "reveal_complete"
	EventQuestion         = "question"
	EventAnswerComplete   = "answer_complete"
	EventShowExample      = "show_example"
	EventExampleComplete  = "example_complete"
	EventChatMessage      = "chat_message"
	EventQuizStart        = "quiz_start"
	EventQuizAnswer       = "quiz_answer"
	EventQuizComplete     = "quiz_complete"
	EventPracticeStart    = "practice_start"
	EventPracticeComplete = "practice_complete"
	EventChooseSection    = "choose_section"
	EventChoiceMade       = "choice_made"
	EventContinueSection  = "continue_section"
	EventPause            = "pause"
	EventPauseLesson      = "pause_lesson"
	EventResume           = "resume"
	EventNextSlide        = "next_slide"
	EventPreviousSlide    = "previous_slide"
	EventRepeatSlide      = "repeat_slide"
	EventError            = "error"

	// Internal-only events delivered through the session inbox. Never
	// accepted from the API surface.
	eventBeatTimer  = "beat_timer_fired"
	eventIdleTimer  = "idle_timer_fired"
	eventJumpTo     = "jump_to_point"
	eventSetSpeed   = "set_speed"
	eventGetState   = "get_state"
)

// Payload is the tagged variant carried by an Event. Each event kind that
// needs data has its own payload type; everything else carries nil.
type Payload interface{ isPayload() }

type ModeSelectedPayload struct {
	Mode        string // "chat", "presentation", "voice"
	AutoAdvance bool
	ProgReveal  bool
}

type QuestionPayload struct {
	Text string
}

type ChatMessagePayload struct {
	Text string
}

type QuizAnswerPayload struct {
	QuestionIndex int
	Correct       bool
}

type ChoiceMadePayload struct {
	Kind         string // "section", "quiz", "practice"
	SectionIndex int
}

type AudioFinishedPayload struct {
	SegmentRef string
}

type ErrorPayload struct {
	Cause string
}

type beatTimerPayload struct {
	gen uint64
}

type idleTimerPayload struct {
	gen uint64
}

type jumpToPayload struct {
	Position int
}

type setSpeedPayload struct {
	Speed float64
}

type getStatePayload struct {
	reply chan Snapshot
}

func (ModeSelectedPayload) isPayload()  {}
func (QuestionPayload) isPayload()      {}
func (ChatMessagePayload) isPayload()   {}
func (QuizAnswerPayload) isPayload()    {}
func (ChoiceMadePayload) isPayload()    {}
func (AudioFinishedPayload) isPayload() {}
func (ErrorPayload) isPayload()         {}
func (beatTimerPayload) isPayload()     {}
func (idleTimerPayload) isPayload()     {}
func (jumpToPayload) isPayload()        {}
func (setSpeedPayload) isPayload()      {}
func (getStatePayload) isPayload()      {}

// Event is one unit of input to a session: an external trigger, a timer fire
// or an internally synthesized continuation.
type Event struct {
	Name    string
	Payload Payload

	// internal marks events synthesized by the engine itself. External
	// events re-arm the idle timer; internal ones do not.
	internal bool
}

// BuildEvent constructs a typed event from a decoded JSON body. Unknown
// names pass through with a nil payload and are rejected by ValidateInbound.
func BuildEvent(name string, payload map[string]any) (Event, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	ev := Event{Name: name}

	switch name {
	case EventModeSelected:
		ev.Payload = ModeSelectedPayload{
			Mode:        stringField(payload, "mode"),
			AutoAdvance: boolField(payload, "auto_advance"),
			ProgReveal:  boolField(payload, "progressive_reveal"),
		}
	case EventQuestion:
		ev.Payload = QuestionPayload{Text: stringField(payload, "text")}
	case EventChatMessage:
		ev.Payload = ChatMessagePayload{Text: stringField(payload, "text")}
	case EventQuizAnswer:
		ev.Payload = QuizAnswerPayload{
			QuestionIndex: intField(payload, "question_index"),
			Correct:       boolField(payload, "correct"),
		}
	case EventChoiceMade:
		ev.Payload = ChoiceMadePayload{
			Kind:         stringField(payload, "kind"),
			SectionIndex: intField(payload, "section_index"),
		}
	case EventAudioFinished:
		ev.Payload = AudioFinishedPayload{SegmentRef: stringField(payload, "segment_ref")}
	}

	if err := ValidateInbound(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	// JSON numbers decode as float64.
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	if i, ok := m[key].(int); ok {
		return i
	}
	return 0
}

// ValidateInbound checks an event arriving at the API boundary: the name must
// be an accepted external event and the payload must match the event kind.
func ValidateInbound(ev Event) error {
	switch ev.Name {
	case EventModeSelected:
		p, ok := ev.Payload.(ModeSelectedPayload)
		if !ok {
			return fmt.Errorf("event %q requires a mode payload", ev.Name)
		}
		switch strings.TrimSpace(strings.ToLower(p.Mode)) {
		case "chat", "presentation", "voice":
		default:
			return fmt.Errorf("unknown mode %q", p.Mode)
		}
	case EventQuestion:
		p, ok := ev.Payload.(QuestionPayload)
		if !ok || strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("event %q requires question text", ev.Name)
		}
	case EventChatMessage:
		p, ok := ev.Payload.(ChatMessagePayload)
		if !ok || strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("event %q requires message text", ev.Name)
		}
	case EventQuizAnswer:
		if _, ok := ev.Payload.(QuizAnswerPayload); !ok {
			return fmt.Errorf("event %q requires an answer payload", ev.Name)
		}
	case EventChoiceMade:
		p, ok := ev.Payload.(ChoiceMadePayload)
		if !ok {
			return fmt.Errorf("event %q requires a choice payload", ev.Name)
		}
		switch p.Kind {
		case "section", "quiz", "practice":
		default:
			return fmt.Errorf("unknown choice kind %q", p.Kind)
		}
	case EventAudioFinished:
		if _, ok := ev.Payload.(AudioFinishedPayload); !ok && ev.Payload != nil {
			return fmt.Errorf("event %q payload mismatch", ev.Name)
		}
	case EventAnswerComplete, EventExampleComplete, EventShowExample,
		EventQuizStart, EventQuizComplete, EventPracticeStart,
		EventPracticeComplete, EventChooseSection, EventContinueSection:
		// no payload required
	default:
		return fmt.Errorf("event %q is not accepted from the inbound surface", ev.Name)
	}
	return nil
}
