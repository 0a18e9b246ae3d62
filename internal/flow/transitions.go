package flow

import (
	"context"
	"fmt"
	"strings"
)

// transitionTable declares every rule of the flow engine. Declaration order
// matters: the machine applies the first rule whose event, source state and
// guard all match.
func (s *session) transitionTable() []Rule {
	return []Rule{
		{
			From:   []State{StateIdle},
			Event:  EventStart,
			To:     StateInitializing,
			Action: s.actionInitialize,
		},
		{
			From:   []State{StateInitializing},
			Event:  EventStructureLoaded,
			To:     StateWaitingForMode,
			Action: s.actionAnnounceModes,
		},
		{
			From:  []State{StateWaitingForMode},
			Event: EventModeSelected,
			// Mode-dependent fan-out: one rule instead of one per mode.
			ToFunc: func(f *Flow, ev Event) State {
				if p, ok := ev.Payload.(ModeSelectedPayload); ok && modeName(p.Mode) == "chat" {
					return StateChatting
				}
				return StatePresenting
			},
			Guard: func(f *Flow, ev Event) bool {
				p, ok := ev.Payload.(ModeSelectedPayload)
				return ok && modeName(p.Mode) != ""
			},
			Action: s.actionModeSelected,
		},
		{
			From:  []State{StatePresenting},
			Event: EventRevealStarted,
			To:    StateProgressiveRevealing,
		},
		{
			From:  []State{StateProgressiveRevealing},
			Event: EventAudioStarted,
			To:    StateAudioPlaying,
			Guard: func(f *Flow, ev Event) bool { return f.VoiceEnabled },
		},
		{
			From:   []State{StateAudioPlaying},
			Event:  EventAudioFinished,
			To:     StateProgressiveRevealing,
			Action: s.actionAudioFinished,
		},
		{
			From:  presentingStates(),
			Event: EventRevealComplete,
			ToFunc: func(f *Flow, ev Event) State {
				if f.hasNextSlide() {
					return StatePresenting
				}
				return StateSectionComplete
			},
			Action: s.actionAfterSlide,
		},
		{
			From:  []State{StateSectionComplete},
			Event: EventContinueSection,
			ToFunc: func(f *Flow, ev Event) State {
				if f.hasNextSection() {
					return StatePresenting
				}
				return StateLessonComplete
			},
			Action: s.actionContinueSection,
		},

		// Interruptions. The question event itself is routed through the
		// interruption handler first; these rules apply its decision.
		{
			From:   append(presentingStates(), StateChatting, StateWaitingForChoice, StateSectionComplete, StatePaused, StateQuizMode),
			Event:  EventQuestion,
			To:     StateAnsweringQuestion,
			Action: s.actionQuestionAccepted,
		},
		{
			From:   []State{StateAnsweringQuestion},
			Event:  EventAnswerComplete,
			ToFunc: s.resumeTarget,
			Action: s.actionResumeFromInterrupt,
		},
		{
			From:   activeStates(),
			Event:  EventPauseLesson,
			To:     StatePaused,
			Action: s.actionPauseLesson,
		},
		{
			From:   append(presentingStates(), StateChatting, StateAnsweringQuestion),
			Event:  EventShowExample,
			To:     StateShowingExample,
			Action: s.actionShowExample,
		},
		{
			From:   []State{StateShowingExample},
			Event:  EventExampleComplete,
			ToFunc: s.resumeTarget,
			Action: s.actionResumeFromInterrupt,
		},

		// Quiz and practice.
		{
			From:   append(presentingStates(), StateSectionComplete, StateChatting, StateWaitingForChoice),
			Event:  EventQuizStart,
			To:     StateQuizMode,
			Action: s.actionEnterQuiz,
		},
		{
			From:   []State{StateQuizMode},
			Event:  EventQuizAnswer,
			To:     StateQuizMode,
			Action: s.actionQuizAnswer,
		},
		{
			From:   []State{StateQuizMode},
			Event:  EventQuizComplete,
			ToFunc: s.resumeTarget,
			Action: s.actionResumeFromInterrupt,
		},
		{
			From:   []State{StateSectionComplete, StateChatting, StateWaitingForChoice},
			Event:  EventPracticeStart,
			To:     StatePracticeMode,
			Action: func(ctx context.Context, f *Flow, ev Event) error {
				s.publish("practice_started", map[string]any{"section": f.Cursors.Section})
				return nil
			},
		},
		{
			From:   []State{StatePracticeMode},
			Event:  EventPracticeComplete,
			ToFunc: s.resumeTarget,
			Action: s.actionResumeFromInterrupt,
		},

		// Section choice.
		{
			From:   []State{StateChatting, StateSectionComplete, StateWaitingForMode},
			Event:  EventChooseSection,
			To:     StateWaitingForChoice,
			Action: s.actionAnnounceChoices,
		},
		{
			From:  []State{StateWaitingForChoice},
			Event: EventChoiceMade,
			ToFunc: func(f *Flow, ev Event) State {
				p, _ := ev.Payload.(ChoiceMadePayload)
				switch p.Kind {
				case "quiz":
					return StateQuizMode
				case "practice":
					return StatePracticeMode
				default:
					return StatePresenting
				}
			},
			Guard: func(f *Flow, ev Event) bool {
				p, ok := ev.Payload.(ChoiceMadePayload)
				if !ok {
					return false
				}
				if p.Kind != "section" {
					return true
				}
				return f.Structure != nil && p.SectionIndex >= 0 && p.SectionIndex < len(f.Structure.Sections)
			},
			Action: s.actionChoiceMade,
		},

		// Chat.
		{
			From:   []State{StateChatting},
			Event:  EventChatMessage,
			To:     StateChatting,
			Action: func(ctx context.Context, f *Flow, ev Event) error {
				p, _ := ev.Payload.(ChatMessagePayload)
				f.bumpEngagement(1)
				s.publish("chat_message_received", map[string]any{"text": p.Text})
				return nil
			},
		},

		// Playback controls.
		{
			From:   presentingStates(),
			Event:  EventPause,
			To:     StatePaused,
			Action: s.actionPauseLesson,
		},
		{
			From:   []State{StatePaused},
			Event:  EventResume,
			ToFunc: s.resumeTarget,
			Action: s.actionResumeFromInterrupt,
		},
		{
			From:  append(presentingStates(), StatePaused, StateSectionComplete),
			Event: EventNextSlide,
			ToFunc: func(f *Flow, ev Event) State {
				if f.hasNextSlide() || f.hasNextSection() {
					return StatePresenting
				}
				return StateSectionComplete
			},
			Guard:  func(f *Flow, ev Event) bool { return f.hasNextSlide() || f.hasNextSection() },
			Action: s.actionNextSlide,
		},
		{
			From:   append(presentingStates(), StatePaused),
			Event:  EventPreviousSlide,
			To:     StatePresenting,
			Guard:  func(f *Flow, ev Event) bool { return f.hasPreviousSlide() },
			Action: s.actionPreviousSlide,
		},
		{
			From:   append(presentingStates(), StatePaused),
			Event:  EventRepeatSlide,
			To:     StatePresenting,
			Action: s.actionRepeatSlide,
		},

		// Error is reachable from every non-terminal state.
		{
			From:   activeStates(),
			Event:  EventError,
			To:     StateError,
			Action: s.actionError,
		},
	}
}

func modeName(mode string) string {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "chat":
		return "chat"
	case "presentation":
		return "presentation"
	case "voice":
		return "voice"
	default:
		return ""
	}
}

// ---- actions ----

func (s *session) actionInitialize(ctx context.Context, f *Flow, ev Event) error {
	structure, err := s.deps.Content.GetLessonStructure(ctx, f.LessonID)
	if err != nil {
		return fmt.Errorf("load lesson structure: %w", err)
	}
	if structure == nil || len(structure.Sections) == 0 {
		return fmt.Errorf("lesson %s has no sections", f.LessonID)
	}
	f.Structure = structure
	return s.machine.Transition(ctx, f, Event{Name: EventStructureLoaded, internal: true})
}

func (s *session) actionAnnounceModes(ctx context.Context, f *Flow, ev Event) error {
	s.publish("mode_options", map[string]any{
		"title": f.Structure.Title,
		"modes": []string{"chat", "presentation", "voice"},
	})
	return nil
}

func (s *session) actionModeSelected(ctx context.Context, f *Flow, ev Event) error {
	p, _ := ev.Payload.(ModeSelectedPayload)
	f.ModeSelected = true
	f.Mode = modeName(p.Mode)
	f.VoiceEnabled = f.Mode == "voice"
	f.AutoAdvance = p.AutoAdvance
	if p.ProgReveal {
		f.ProgressiveReveal = true
	}
	if f.CurrentState != StatePresenting {
		s.publish("chat_ready", map[string]any{"title": f.Structure.Title})
		return nil
	}
	return s.startCurrentSlide(ctx, f)
}

// startCurrentSlide loads the slide's beat timings, builds the timeline,
// starts playback and moves the machine into progressive reveal.
func (s *session) startCurrentSlide(ctx context.Context, f *Flow) error {
	slide := f.currentSlide()
	if slide == nil {
		return fmt.Errorf("no slide at section %d slide %d", f.Cursors.Section, f.Cursors.Slide)
	}
	beats, err := s.deps.Content.GetSlideBeats(ctx, f.LessonID, f.Cursors.Section, f.Cursors.Slide)
	if err != nil {
		return fmt.Errorf("load slide beats: %w", err)
	}
	s.timeline.Load(BuildSlideTimeline(slide, beats, s.deps.Pacing, f.VoiceEnabled))
	s.timeline.SetSpeed(f.PlaybackSpeed)
	s.timeline.Start()
	return s.machine.Transition(ctx, f, Event{Name: EventRevealStarted, internal: true})
}

func (s *session) actionAudioFinished(ctx context.Context, f *Flow, ev Event) error {
	// No-op when the fallback timeout already advanced the beat.
	s.timeline.AudioFinished()
	return nil
}

func (s *session) actionAfterSlide(ctx context.Context, f *Flow, ev Event) error {
	if f.CurrentState == StatePresenting {
		f.Cursors.Slide++
		f.Cursors.Point = 0
		return s.startCurrentSlide(ctx, f)
	}
	s.timeline.Stop()
	s.publish("section_complete", map[string]any{"section": f.Cursors.Section})
	if f.AutoAdvance {
		return s.machine.Transition(ctx, f, Event{Name: EventContinueSection, internal: true})
	}
	return nil
}

func (s *session) actionContinueSection(ctx context.Context, f *Flow, ev Event) error {
	if f.CurrentState == StateLessonComplete {
		s.publish("lesson_complete", map[string]any{
			"sections": len(f.Structure.Sections),
			"metrics":  f.Metrics,
		})
		return nil
	}
	f.Cursors.Section++
	f.Cursors.Slide = 0
	f.Cursors.Point = 0
	return s.startCurrentSlide(ctx, f)
}

// suspendPresentation pauses the timeline, capturing the exact elapsed
// offset within the current beat, and pushes the position on the resume
// stack. An interruption arriving while the lesson is explicitly Paused
// records the pause itself, so finishing the interruption returns to
// Paused and only an explicit resume restarts playback.
func (s *session) suspendPresentation(f *Flow) {
	switch {
	case f.PreviousState.Presenting():
		offset := s.timeline.Pause()
		f.pushResume(resumeFrame{
			State:      f.PreviousState,
			Cursors:    f.Cursors,
			Position:   s.timeline.Position(),
			BeatOffset: offset,
		})
	case f.PreviousState == StatePaused && f.CurrentState != StatePaused:
		// The timeline is already suspended; keep its offset untouched.
		f.pushResume(resumeFrame{
			State:      StatePaused,
			Cursors:    f.Cursors,
			Position:   s.timeline.Position(),
			BeatOffset: s.timeline.ElapsedInBeat(),
		})
	}
}

// resumeTarget computes where an interruption returns to: the suspended
// state when one is recorded, otherwise the mode-appropriate idle surface.
func (s *session) resumeTarget(f *Flow, ev Event) State {
	if frame, ok := f.peekResume(); ok {
		return frame.State
	}
	if f.Mode == "chat" {
		return StateChatting
	}
	return StateSectionComplete
}

func (s *session) actionResumeFromInterrupt(ctx context.Context, f *Flow, ev Event) error {
	frame, ok := f.popResume()
	if !ok {
		s.publish("resumed", map[string]any{"state": f.CurrentState})
		return nil
	}
	f.Cursors = frame.Cursors
	// A frame recording Paused restores the pause without restarting
	// playback; the timeline stays suspended at its offset.
	if frame.State.Presenting() {
		s.timeline.Resume(frame.BeatOffset)
	}
	s.publish("resumed", map[string]any{
		"state":          f.CurrentState,
		"position":       frame.Position,
		"beat_offset_ms": frame.BeatOffset.Milliseconds(),
	})
	return nil
}

func (s *session) actionQuestionAccepted(ctx context.Context, f *Flow, ev Event) error {
	s.suspendPresentation(f)
	f.Metrics.Interruptions++
	payload := map[string]any{"text": questionText(ev)}
	if d, ok := decisionFrom(ev); ok {
		payload["response_level"] = d.ResponseLevel
		payload["action"] = string(d.Action)
	}
	s.publish("question_accepted", payload)
	return nil
}

func (s *session) actionPauseLesson(ctx context.Context, f *Flow, ev Event) error {
	s.suspendPresentation(f)
	s.publish("paused", map[string]any{"state": f.PreviousState})
	return nil
}

func (s *session) actionShowExample(ctx context.Context, f *Flow, ev Event) error {
	s.suspendPresentation(f)
	s.publish("example_shown", map[string]any{
		"section": f.Cursors.Section,
		"slide":   f.Cursors.Slide,
	})
	return nil
}

func (s *session) actionEnterQuiz(ctx context.Context, f *Flow, ev Event) error {
	s.suspendPresentation(f)
	s.publish("quiz_started", map[string]any{"section": f.Cursors.Section})
	return nil
}

func (s *session) actionQuizAnswer(ctx context.Context, f *Flow, ev Event) error {
	p, _ := ev.Payload.(QuizAnswerPayload)
	if p.Correct {
		f.bumpComprehension(5)
	} else {
		f.bumpComprehension(-3)
	}
	s.publish("quiz_feedback", map[string]any{
		"question":      p.QuestionIndex,
		"correct":       p.Correct,
		"comprehension": f.Metrics.Comprehension,
	})
	return nil
}

func (s *session) actionAnnounceChoices(ctx context.Context, f *Flow, ev Event) error {
	titles := make([]string, 0, len(f.Structure.Sections))
	for _, sec := range f.Structure.Sections {
		titles = append(titles, sec.Title)
	}
	s.publish("choices", map[string]any{"sections": titles})
	return nil
}

func (s *session) actionChoiceMade(ctx context.Context, f *Flow, ev Event) error {
	p, _ := ev.Payload.(ChoiceMadePayload)
	switch f.CurrentState {
	case StatePresenting:
		f.Cursors = Cursors{Section: p.SectionIndex}
		return s.startCurrentSlide(ctx, f)
	case StateQuizMode:
		s.publish("quiz_started", map[string]any{"section": f.Cursors.Section})
	case StatePracticeMode:
		s.publish("practice_started", map[string]any{"section": f.Cursors.Section})
	}
	return nil
}

func (s *session) actionNextSlide(ctx context.Context, f *Flow, ev Event) error {
	s.timeline.Stop()
	f.dropResume()
	if f.hasNextSlide() {
		f.Cursors.Slide++
	} else {
		f.Cursors.Section++
		f.Cursors.Slide = 0
	}
	f.Cursors.Point = 0
	return s.startCurrentSlide(ctx, f)
}

func (s *session) actionPreviousSlide(ctx context.Context, f *Flow, ev Event) error {
	s.timeline.Stop()
	f.dropResume()
	f.Cursors.Slide--
	f.Cursors.Point = 0
	return s.startCurrentSlide(ctx, f)
}

func (s *session) actionRepeatSlide(ctx context.Context, f *Flow, ev Event) error {
	s.timeline.Stop()
	f.dropResume()
	f.Cursors.Point = 0
	return s.startCurrentSlide(ctx, f)
}

func (s *session) actionError(ctx context.Context, f *Flow, ev Event) error {
	s.timeline.Stop()
	cause := ""
	if p, ok := ev.Payload.(ErrorPayload); ok {
		cause = p.Cause
	}
	s.log.Error("flow entered error state", "cause", cause)
	s.publishRecoverable("internal_error", ev.Name)
	return nil
}
