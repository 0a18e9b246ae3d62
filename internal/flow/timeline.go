package flow

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// BeatKind is the kind of one scheduled timeline unit.
type BeatKind string

const (
	BeatSlideStart   BeatKind = "slide_start"
	BeatAnimation    BeatKind = "animation"
	BeatPointReveal  BeatKind = "point_reveal"
	BeatAudioSegment BeatKind = "audio_segment"
	BeatPause        BeatKind = "pause"
)

// TimelinePoint is one timed beat of the presentation: a reveal, an
// animation, an audio segment or an inter-point pause.
type TimelinePoint struct {
	ID         string   `json:"id"`
	Kind       BeatKind `json:"kind"`
	OffsetMs   int      `json:"offset_ms"`
	DurationMs int      `json:"duration_ms"`
	PointIndex int      `json:"point_index"`
	AudioRef   string   `json:"audio_ref,omitempty"`
	Completed  bool     `json:"completed"`
}

const defaultPointDurationMs = 3000

// BuildSlideTimeline expands one slide into its ordered beat sequence:
// a slide-start beat, then per point an animation, the reveal, an audio
// segment when audio exists, and an inter-point pause between points.
// Offsets strictly increase; there is exactly one slide-start beat.
func BuildSlideTimeline(slide *Slide, beats *SlideBeats, pacing Pacing, voiceEnabled bool) []TimelinePoint {
	if slide == nil {
		return nil
	}

	var out []TimelinePoint
	offset := 0
	add := func(kind BeatKind, durationMs, pointIndex int, audioRef string) {
		out = append(out, TimelinePoint{
			ID:         fmt.Sprintf("b%d", len(out)),
			Kind:       kind,
			OffsetMs:   offset,
			DurationMs: durationMs,
			PointIndex: pointIndex,
			AudioRef:   audioRef,
		})
		offset += durationMs
	}

	add(BeatSlideStart, pacing.SlideStartMs, -1, "")

	n := len(slide.Points)
	for i, p := range slide.Points {
		dur := pointDurationMs(slide, beats, i, p)

		// A pacing profile may zero out animations and pauses; a beat of
		// zero duration would share its successor's offset, so it is not
		// emitted at all.
		if pacing.AnimationMs > 0 {
			add(BeatAnimation, pacing.AnimationMs, i, "")
		}
		add(BeatPointReveal, dur, i, "")

		ref := p.AudioRef
		if beats != nil && i < len(beats.AudioRefs) && beats.AudioRefs[i] != "" {
			ref = beats.AudioRefs[i]
		}
		if voiceEnabled && slide.HasAudio && ref != "" {
			add(BeatAudioSegment, dur, i, ref)
		}

		if i < n-1 && pacing.InterPointPauseMs > 0 {
			add(BeatPause, pacing.InterPointPauseMs, -1, "")
		}
	}
	return out
}

func pointDurationMs(slide *Slide, beats *SlideBeats, i int, p Point) int {
	if beats != nil && i < len(beats.PointDurationsMs) && beats.PointDurationsMs[i] > 0 {
		return beats.PointDurationsMs[i]
	}
	if p.DurationMs > 0 {
		return p.DurationMs
	}
	if slide.DurationMs > 0 && len(slide.Points) > 0 {
		return slide.DurationMs / len(slide.Points)
	}
	return defaultPointDurationMs
}

// timelineEffects are the scheduler's outputs. All of them run on the
// session goroutine.
type timelineEffects struct {
	onBeat         func(TimelinePoint)
	onComplete     func()
	onAudioTimeout func(TimelinePoint)
}

// timelineScheduler drives one slide's beat sequence. It is owned by a
// single session goroutine; its timer callbacks do nothing but post an
// event back into that session's inbox, so every mutation happens under
// the session's single thread of control.
//
// Structural invariants: at most one outstanding timer, and no timer at
// all while paused or inactive. A cancelled timer can never act: every
// cancel bumps the generation and a fire with a stale generation is inert.
type timelineScheduler struct {
	clk     clock.Clock
	post    func(Event) bool
	effects timelineEffects
	pacing  Pacing

	beats []TimelinePoint
	pos   int
	speed float64

	active       bool
	paused       bool
	waitingAudio bool

	timer *clock.Timer
	gen   uint64

	segStarted time.Time     // wall moment the current run segment began
	elapsed    time.Duration // content time consumed in the current beat
}

func newTimelineScheduler(clk clock.Clock, pacing Pacing, post func(Event) bool, effects timelineEffects) *timelineScheduler {
	return &timelineScheduler{
		clk:     clk,
		post:    post,
		effects: effects,
		pacing:  pacing,
		speed:   1.0,
	}
}

// Load replaces the beat sequence and resets playback without starting it.
func (t *timelineScheduler) Load(beats []TimelinePoint) {
	t.cancelTimer()
	t.beats = beats
	t.pos = 0
	t.active = false
	t.paused = false
	t.waitingAudio = false
	t.elapsed = 0
}

// Start begins playback from the first beat.
func (t *timelineScheduler) Start() {
	if len(t.beats) == 0 {
		t.effects.onComplete()
		return
	}
	t.active = true
	t.paused = false
	t.pos = 0
	t.executeCurrent()
}

// Pause cancels the outstanding timer and records how far into the current
// beat playback had progressed, in content time. The returned offset is what
// Resume needs to continue without skipping or replaying.
func (t *timelineScheduler) Pause() time.Duration {
	if !t.active || t.paused {
		return t.elapsed
	}
	t.elapsed += t.contentSince(t.segStarted)
	t.cancelTimer()
	t.paused = true
	t.waitingAudio = false
	return t.elapsed
}

// Resume continues playback of the current beat from the given content
// offset, never from the beat boundary.
func (t *timelineScheduler) Resume(offset time.Duration) {
	if !t.active || !t.paused {
		return
	}
	t.paused = false
	t.elapsed = offset
	remaining := t.beatDuration() - t.elapsed
	if remaining <= 0 {
		t.advance()
		return
	}
	t.segStarted = t.clk.Now()
	t.scheduleRemaining(remaining)
}

// SetSpeed rescales the outstanding timer against the *remaining* duration
// of the current beat so total wall time stays continuous across mid-beat
// speed changes.
func (t *timelineScheduler) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	if t.active && !t.paused && t.timer != nil {
		t.elapsed += t.contentSince(t.segStarted)
		t.cancelTimer()
		t.speed = speed
		remaining := t.beatDuration() - t.elapsed
		if remaining <= 0 {
			t.advance()
			return
		}
		t.segStarted = t.clk.Now()
		t.scheduleRemaining(remaining)
		return
	}
	t.speed = speed
}

// JumpTo cancels the outstanding timer, moves to the target beat and
// executes it immediately. Skipped beats are never executed. When not
// paused, playback continues normally from the target beat onward.
func (t *timelineScheduler) JumpTo(pos int) error {
	if pos < 0 || pos >= len(t.beats) {
		return fmt.Errorf("timeline position %d out of range [0,%d)", pos, len(t.beats))
	}
	t.cancelTimer()
	t.waitingAudio = false
	t.active = true
	t.pos = pos
	t.elapsed = 0
	if t.paused {
		t.effects.onBeat(t.beats[t.pos])
		return nil
	}
	t.executeCurrent()
	return nil
}

// AudioFinished completes the audio beat the scheduler is waiting on.
// Returns false when no audio wait is outstanding.
func (t *timelineScheduler) AudioFinished() bool {
	if !t.active || !t.waitingAudio {
		return false
	}
	t.cancelTimer()
	t.waitingAudio = false
	t.advance()
	return true
}

// Stop cancels everything and deactivates playback.
func (t *timelineScheduler) Stop() {
	t.cancelTimer()
	t.active = false
	t.paused = false
	t.waitingAudio = false
}

func (t *timelineScheduler) Active() bool          { return t.active }
func (t *timelineScheduler) Position() int         { return t.pos }
func (t *timelineScheduler) Length() int           { return len(t.beats) }
func (t *timelineScheduler) Speed() float64        { return t.speed }
func (t *timelineScheduler) WaitingAudio() bool    { return t.waitingAudio }
func (t *timelineScheduler) Beats() []TimelinePoint { return t.beats }

// ElapsedInBeat reports content time consumed in the current beat,
// including the running segment when playback is live.
func (t *timelineScheduler) ElapsedInBeat() time.Duration {
	if t.active && !t.paused && t.timer != nil {
		return t.elapsed + t.contentSince(t.segStarted)
	}
	return t.elapsed
}

// onTimerFired handles a beat timer delivered through the session inbox.
// A stale generation means the timer was cancelled after the fire was
// already queued; it is dropped without effect.
func (t *timelineScheduler) onTimerFired(gen uint64) {
	if gen != t.gen || !t.active || t.paused {
		return
	}
	t.timer = nil
	if t.waitingAudio {
		beat := t.beats[t.pos]
		t.waitingAudio = false
		t.effects.onAudioTimeout(beat)
		t.advance()
		return
	}
	t.advance()
}

func (t *timelineScheduler) executeCurrent() {
	beat := t.beats[t.pos]
	t.elapsed = 0
	t.segStarted = t.clk.Now()
	t.effects.onBeat(beat)
	t.scheduleRemaining(t.beatDuration())
}

func (t *timelineScheduler) advance() {
	t.beats[t.pos].Completed = true
	t.waitingAudio = false
	t.elapsed = 0
	t.pos++
	if t.pos >= len(t.beats) {
		t.cancelTimer()
		t.active = false
		t.effects.onComplete()
		return
	}
	t.executeCurrent()
}

// scheduleRemaining arms the single beat timer for the given content-time
// remainder scaled by playback speed. Audio beats get the mandatory
// fallback timeout instead of a completion timer.
func (t *timelineScheduler) scheduleRemaining(remaining time.Duration) {
	t.cancelTimer()
	wall := time.Duration(float64(remaining) / t.speed)
	if t.beats[t.pos].Kind == BeatAudioSegment {
		t.waitingAudio = true
		wall += time.Duration(t.pacing.AudioGraceMs) * time.Millisecond
	}
	gen := t.gen
	t.timer = t.clk.AfterFunc(wall, func() {
		t.post(Event{Name: eventBeatTimer, Payload: beatTimerPayload{gen: gen}, internal: true})
	})
}

func (t *timelineScheduler) cancelTimer() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *timelineScheduler) beatDuration() time.Duration {
	return time.Duration(t.beats[t.pos].DurationMs) * time.Millisecond
}

func (t *timelineScheduler) contentSince(start time.Time) time.Duration {
	return time.Duration(float64(t.clk.Now().Sub(start)) * t.speed)
}
