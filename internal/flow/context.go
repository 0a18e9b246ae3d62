package flow

import (
	"time"

	"github.com/google/uuid"
)

// LessonStructure is the ordered content of one lesson as returned by the
// content provider: sections, slides, optional sub-points.
type LessonStructure struct {
	LessonID uuid.UUID `json:"lesson_id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Title  string  `json:"title"`
	Slides []Slide `json:"slides"`
}

type Slide struct {
	Title      string  `json:"title"`
	DurationMs int     `json:"duration_ms"`
	HasAudio   bool    `json:"has_audio"`
	Points     []Point `json:"points"`
}

type Point struct {
	Text       string `json:"text"`
	DurationMs int    `json:"duration_ms"` // 0 means split the slide duration evenly
	AudioRef   string `json:"audio_ref,omitempty"`
}

// SlideBeats carries per-slide timing refinements fetched lazily when a slide
// becomes current. Empty slices fall back to the structure defaults.
type SlideBeats struct {
	PointDurationsMs []int    `json:"point_durations_ms"`
	AudioRefs        []string `json:"audio_refs"`
}

// Cursors locate the current position inside the lesson structure.
type Cursors struct {
	Section int `json:"section"`
	Slide   int `json:"slide"`
	Point   int `json:"point"`
}

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	State State     `json:"state"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

const historyLimit = 50

// resumeFrame is one suspended presentation position: the state to return
// to, where in the structure it was, and how far into the current beat the
// timeline had progressed when it was paused.
type resumeFrame struct {
	State      State
	Cursors    Cursors
	Position   int
	BeatOffset time.Duration
}

// Metrics are per-session counters included in snapshots.
type Metrics struct {
	StateChanges  int     `json:"state_changes"`
	Interruptions int     `json:"interruptions"`
	Comprehension float64 `json:"comprehension"` // 0-100
	Engagement    float64 `json:"engagement"`    // 0-100
}

// Flow is the mutable state of one user's in-progress lesson session. It is
// exclusively owned by its session goroutine; nothing outside the session
// may touch it while the session is live.
type Flow struct {
	UserID    uuid.UUID
	LessonID  uuid.UUID
	SessionID uuid.UUID

	CurrentState  State
	PreviousState State
	history       []HistoryEntry

	Structure *LessonStructure
	Cursors   Cursors

	PlaybackSpeed float64

	IsPaused          bool
	IsInterrupted     bool
	ModeSelected      bool
	Mode              string
	VoiceEnabled      bool
	AutoAdvance       bool
	ProgressiveReveal bool

	RevealedPoints []int // point indexes revealed on the current slide

	resumeStack []resumeFrame
	Metrics     Metrics

	StartedAt time.Time
}

func newFlow(userID, lessonID, sessionID uuid.UUID, now time.Time) *Flow {
	return &Flow{
		UserID:            userID,
		LessonID:          lessonID,
		SessionID:         sessionID,
		CurrentState:      StateIdle,
		PreviousState:     StateIdle,
		PlaybackSpeed:     1.0,
		ProgressiveReveal: true,
		StartedAt:         now,
	}
}

func (f *Flow) recordHistory(s State, event string, at time.Time) {
	f.history = append(f.history, HistoryEntry{State: s, Event: event, At: at})
	if len(f.history) > historyLimit {
		f.history = f.history[len(f.history)-historyLimit:]
	}
}

func (f *Flow) pushResume(frame resumeFrame) {
	f.resumeStack = append(f.resumeStack, frame)
	f.IsInterrupted = true
}

func (f *Flow) popResume() (resumeFrame, bool) {
	if len(f.resumeStack) == 0 {
		return resumeFrame{}, false
	}
	frame := f.resumeStack[len(f.resumeStack)-1]
	f.resumeStack = f.resumeStack[:len(f.resumeStack)-1]
	f.IsInterrupted = len(f.resumeStack) > 0
	return frame, true
}

func (f *Flow) dropResume() {
	f.resumeStack = f.resumeStack[:0]
	f.IsInterrupted = false
}

func (f *Flow) peekResume() (resumeFrame, bool) {
	if len(f.resumeStack) == 0 {
		return resumeFrame{}, false
	}
	return f.resumeStack[len(f.resumeStack)-1], true
}

func (f *Flow) currentSection() *Section {
	if f.Structure == nil || f.Cursors.Section >= len(f.Structure.Sections) {
		return nil
	}
	return &f.Structure.Sections[f.Cursors.Section]
}

func (f *Flow) currentSlide() *Slide {
	sec := f.currentSection()
	if sec == nil || f.Cursors.Slide >= len(sec.Slides) {
		return nil
	}
	return &sec.Slides[f.Cursors.Slide]
}

func (f *Flow) hasNextSlide() bool {
	sec := f.currentSection()
	return sec != nil && f.Cursors.Slide+1 < len(sec.Slides)
}

func (f *Flow) hasPreviousSlide() bool {
	return f.Cursors.Slide > 0
}

func (f *Flow) hasNextSection() bool {
	return f.Structure != nil && f.Cursors.Section+1 < len(f.Structure.Sections)
}

func (f *Flow) bumpEngagement(delta float64) {
	f.Metrics.Engagement = clamp(f.Metrics.Engagement+delta, 0, 100)
}

func (f *Flow) bumpComprehension(delta float64) {
	f.Metrics.Comprehension = clamp(f.Metrics.Comprehension+delta, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Snapshot is a read-only copy of the observable flow state, safe to hand
// across goroutines.
type Snapshot struct {
	UserID    uuid.UUID `json:"user_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	SessionID uuid.UUID `json:"session_id"`

	CurrentState  State `json:"current_state"`
	PreviousState State `json:"previous_state"`

	Cursors        Cursors `json:"cursors"`
	RevealedPoints []int   `json:"revealed_points"`

	TimelinePosition int           `json:"timeline_position"`
	TimelineLength   int           `json:"timeline_length"`
	BeatOffset       time.Duration `json:"beat_offset"`
	PlaybackSpeed    float64       `json:"playback_speed"`

	IsPaused      bool   `json:"is_paused"`
	IsInterrupted bool   `json:"is_interrupted"`
	ModeSelected  bool   `json:"mode_selected"`
	Mode          string `json:"mode,omitempty"`
	VoiceEnabled  bool   `json:"voice_enabled"`
	AutoAdvance   bool   `json:"auto_advance"`

	ResumeDepth int     `json:"resume_depth"`
	Metrics     Metrics `json:"metrics"`

	History []HistoryEntry `json:"history"`

	StartedAt time.Time `json:"started_at"`
}
