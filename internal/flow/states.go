package flow

// State is the presentation state of a single lesson flow.
type State string

const (
	StateIdle                 State = "idle"
	StateInitializing         State = "initializing"
	StateWaitingForMode       State = "waiting_for_mode"
	StateWaitingForChoice     State = "waiting_for_choice"
	StatePresenting           State = "presenting"
	StateProgressiveRevealing State = "progressive_revealing"
	StatePaused               State = "paused"
	StateAudioPlaying         State = "audio_playing"
	StateChatting             State = "chatting"
	StateAnsweringQuestion    State = "answering_question"
	StateShowingExample       State = "showing_example"
	StateQuizMode             State = "quiz_mode"
	StatePracticeMode         State = "practice_mode"
	StateSectionComplete      State = "section_complete"
	StateLessonComplete       State = "lesson_complete"
	StateError                State = "error"
)

// Terminal reports whether a flow in this state is finished. A terminal flow
// releases its context; the only way out of StateError is stop and recreate.
func (s State) Terminal() bool {
	return s == StateLessonComplete || s == StateError
}

// Presenting reports whether the state has an active slide presentation,
// meaning an interruption must suspend the timeline before handling input.
func (s State) Presenting() bool {
	switch s {
	case StatePresenting, StateProgressiveRevealing, StateAudioPlaying:
		return true
	default:
		return false
	}
}

var allStates = []State{
	StateIdle, StateInitializing, StateWaitingForMode, StateWaitingForChoice,
	StatePresenting, StateProgressiveRevealing, StatePaused, StateAudioPlaying,
	StateChatting, StateAnsweringQuestion, StateShowingExample, StateQuizMode,
	StatePracticeMode, StateSectionComplete, StateLessonComplete, StateError,
}

// activeStates is every state a live flow can be interrupted or errored from.
func activeStates() []State {
	out := make([]State, 0, len(allStates))
	for _, s := range allStates {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func presentingStates() []State {
	return []State{StatePresenting, StateProgressiveRevealing, StateAudioPlaying}
}
