package flow

import "fmt"

// classifiedQuestion is the question payload after the classifier has ruled
// on it. Internal only; the inbound surface always submits QuestionPayload.
type classifiedQuestion struct {
	Text     string
	decision Decision
}

func (classifiedQuestion) isPayload() {}

func decisionFrom(ev Event) (Decision, bool) {
	if p, ok := ev.Payload.(classifiedQuestion); ok {
		return p.decision, true
	}
	return Decision{}, false
}

func questionText(ev Event) string {
	switch p := ev.Payload.(type) {
	case QuestionPayload:
		return p.Text
	case classifiedQuestion:
		return p.Text
	}
	return ""
}

// handleInterruption routes a user question. Classification is delegated to
// the Classifier collaborator; the engine only consumes its decision:
//
//   - Escalate publishes a notification and leaves the state untouched.
//   - PauseLesson forces a hard transition to Paused from any live state.
//   - Everything else suspends an active presentation and moves to
//     AnsweringQuestion via the transition table.
//
// A classifier failure is a collaborator failure at the action boundary and
// converts to a generic error event.
func (s *session) handleInterruption(ev Event) {
	text := questionText(ev)
	decision, err := s.deps.Classifier.Classify(s.baseCtx, text, s.snapshot())
	if err != nil {
		s.log.Error("classifier failed", "error", err)
		_ = s.machine.Transition(s.baseCtx, s.flow, Event{
			Name:     EventError,
			Payload:  ErrorPayload{Cause: fmt.Sprintf("classify interruption: %v", err)},
			internal: true,
		})
		return
	}

	switch decision.Action {
	case ActionEscalate:
		s.publish("escalation", map[string]any{
			"text":  text,
			"state": s.flow.CurrentState,
		})
		return
	case ActionPauseLesson:
		if err := s.machine.Transition(s.baseCtx, s.flow, Event{Name: EventPauseLesson, internal: true}); err != nil {
			s.log.Warn("pause-lesson transition rejected", "error", err)
		}
		return
	default:
		classified := Event{
			Name:     EventQuestion,
			Payload:  classifiedQuestion{Text: text, decision: decision},
			internal: true,
		}
		if err := s.machine.Transition(s.baseCtx, s.flow, classified); err != nil {
			s.log.Warn("question transition rejected", "state", s.flow.CurrentState, "error", err)
			s.publishRecoverable("invalid_transition", EventQuestion)
		}
	}
}
