package flow

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func testSlide(points int, durationMs int, audio bool) *Slide {
	s := &Slide{Title: "slide", HasAudio: audio}
	for i := 0; i < points; i++ {
		p := Point{Text: "point", DurationMs: durationMs}
		if audio {
			p.AudioRef = "audio/ref"
		}
		s.Points = append(s.Points, p)
	}
	return s
}

// schedHarness drives a scheduler synchronously: timer fires are routed
// straight back into onTimerFired, the way the session inbox does it.
type schedHarness struct {
	clk   *clock.Mock
	sched *timelineScheduler

	beats    []TimelinePoint
	timeouts []TimelinePoint
	complete int
}

func newSchedHarness(t *testing.T, pacing Pacing) *schedHarness {
	t.Helper()
	h := &schedHarness{clk: clock.NewMock()}
	post := func(ev Event) bool {
		if p, ok := ev.Payload.(beatTimerPayload); ok {
			h.sched.onTimerFired(p.gen)
		}
		return true
	}
	h.sched = newTimelineScheduler(h.clk, pacing, post, timelineEffects{
		onBeat:         func(b TimelinePoint) { h.beats = append(h.beats, b) },
		onComplete:     func() { h.complete++ },
		onAudioTimeout: func(b TimelinePoint) { h.timeouts = append(h.timeouts, b) },
	})
	return h
}

func (h *schedHarness) revealedPoints() []int {
	var out []int
	for _, b := range h.beats {
		if b.Kind == BeatPointReveal {
			out = append(out, b.PointIndex)
		}
	}
	return out
}

func TestBuildSlideTimelineShape(t *testing.T) {
	pacing := DefaultPacing()
	slide := testSlide(3, 2000, false)

	beats := BuildSlideTimeline(slide, nil, pacing, false)

	wantKinds := []BeatKind{
		BeatSlideStart,
		BeatAnimation, BeatPointReveal, BeatPause,
		BeatAnimation, BeatPointReveal, BeatPause,
		BeatAnimation, BeatPointReveal,
	}
	if len(beats) != len(wantKinds) {
		t.Fatalf("got %d beats, want %d", len(beats), len(wantKinds))
	}
	starts := 0
	for i, b := range beats {
		if b.Kind != wantKinds[i] {
			t.Fatalf("beat %d: kind %q, want %q", i, b.Kind, wantKinds[i])
		}
		if b.Kind == BeatSlideStart {
			starts++
		}
		if i > 0 && b.OffsetMs <= beats[i-1].OffsetMs {
			t.Fatalf("beat %d: offset %d does not increase past %d", i, b.OffsetMs, beats[i-1].OffsetMs)
		}
	}
	if starts != 1 {
		t.Fatalf("got %d slide-start beats, want exactly 1", starts)
	}
}

func TestBuildSlideTimelineSkipsZeroDurationBeats(t *testing.T) {
	// No animation or inter-point pause configured: those beats are not
	// emitted, and offsets still strictly increase.
	pacing := Pacing{SlideStartMs: 500, AudioGraceMs: 2000}
	slide := testSlide(3, 1000, false)

	beats := BuildSlideTimeline(slide, nil, pacing, false)

	for i, b := range beats {
		if b.Kind == BeatAnimation || b.Kind == BeatPause {
			t.Fatalf("beat %d: zero-duration %q beat emitted", i, b.Kind)
		}
		if i > 0 && b.OffsetMs <= beats[i-1].OffsetMs {
			t.Fatalf("beat %d: offset %d does not increase past %d", i, b.OffsetMs, beats[i-1].OffsetMs)
		}
	}
	if len(beats) != 4 {
		t.Fatalf("got %d beats, want slide start plus 3 reveals", len(beats))
	}
}

func TestBuildSlideTimelineAudioBeats(t *testing.T) {
	pacing := DefaultPacing()
	slide := testSlide(2, 1000, true)

	withVoice := BuildSlideTimeline(slide, nil, pacing, true)
	audioBeats := 0
	for _, b := range withVoice {
		if b.Kind == BeatAudioSegment {
			audioBeats++
			if b.AudioRef == "" {
				t.Fatalf("audio beat missing ref")
			}
		}
	}
	if audioBeats != 2 {
		t.Fatalf("got %d audio beats, want 2", audioBeats)
	}

	withoutVoice := BuildSlideTimeline(slide, nil, pacing, false)
	for _, b := range withoutVoice {
		if b.Kind == BeatAudioSegment {
			t.Fatalf("voice disabled but timeline contains an audio beat")
		}
	}
}

func TestBuildSlideTimelineBeatOverrides(t *testing.T) {
	pacing := DefaultPacing()
	slide := testSlide(2, 1000, false)
	beats := &SlideBeats{PointDurationsMs: []int{4000}}

	out := BuildSlideTimeline(slide, beats, pacing, false)

	var reveals []TimelinePoint
	for _, b := range out {
		if b.Kind == BeatPointReveal {
			reveals = append(reveals, b)
		}
	}
	if reveals[0].DurationMs != 4000 {
		t.Fatalf("point 0: duration %d, want override 4000", reveals[0].DurationMs)
	}
	if reveals[1].DurationMs != 1000 {
		t.Fatalf("point 1: duration %d, want structure default 1000", reveals[1].DurationMs)
	}
}

func TestSchedulerRevealsAllPointsInContentTime(t *testing.T) {
	// 3 points of 3s each with a 500ms slide start and no other overhead:
	// everything revealed and the slide complete within 9.5 simulated seconds.
	pacing := Pacing{SlideStartMs: 500, AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)

	h.sched.Load(BuildSlideTimeline(testSlide(3, 3000, false), nil, pacing, false))
	h.sched.Start()

	h.clk.Add(9500 * time.Millisecond)

	got := h.revealedPoints()
	want := []int{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("revealed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("revealed %v, want %v", got, want)
		}
	}
	if h.complete != 1 {
		t.Fatalf("complete fired %d times, want 1", h.complete)
	}
	if h.sched.Active() {
		t.Fatalf("scheduler still active after completion")
	}
}

func TestSchedulerPauseResumeKeepsOffset(t *testing.T) {
	pacing := Pacing{SlideStartMs: 500, AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)
	h.sched.Load(BuildSlideTimeline(testSlide(1, 3000, false), nil, pacing, false))
	h.sched.Start()

	// Through the slide start, then 1s into the 3s reveal.
	h.clk.Add(1500 * time.Millisecond)

	offset := h.sched.Pause()
	if offset != 1*time.Second {
		t.Fatalf("pause offset = %v, want 1s", offset)
	}

	// A long idle while paused must not advance anything.
	before := len(h.beats)
	h.clk.Add(time.Hour)
	if len(h.beats) != before || h.complete != 0 {
		t.Fatalf("paused scheduler made progress")
	}

	h.sched.Resume(offset)

	h.clk.Add(1999 * time.Millisecond)
	if h.complete != 0 {
		t.Fatalf("beat completed early after resume")
	}
	h.clk.Add(1 * time.Millisecond)
	if h.complete != 1 {
		t.Fatalf("beat did not complete exactly 2s after resume")
	}
}

func TestSchedulerPauseResumeMidAudio(t *testing.T) {
	pacing := Pacing{AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)
	h.sched.Load([]TimelinePoint{
		{ID: "b0", Kind: BeatAudioSegment, DurationMs: 4000, AudioRef: "audio/0"},
		{ID: "b1", Kind: BeatPointReveal, DurationMs: 1000, PointIndex: 0},
	})
	h.sched.Start()

	// 1s into the 4s audio wait.
	h.clk.Add(1 * time.Second)
	offset := h.sched.Pause()
	if offset != 1*time.Second {
		t.Fatalf("pause offset = %v, want 1s", offset)
	}
	if h.sched.WaitingAudio() {
		t.Fatalf("still waiting on audio while paused")
	}
	if h.sched.AudioFinished() {
		t.Fatalf("AudioFinished accepted while paused")
	}

	h.clk.Add(time.Hour)
	if h.sched.Position() != 0 || len(h.timeouts) != 0 {
		t.Fatalf("paused audio beat made progress")
	}

	h.sched.Resume(offset)
	if !h.sched.WaitingAudio() {
		t.Fatalf("audio wait not restored on resume")
	}

	// The fallback fires once, at the 3s remainder plus the full grace.
	h.clk.Add(4999 * time.Millisecond)
	if len(h.timeouts) != 0 {
		t.Fatalf("fallback fired before remainder + grace")
	}
	h.clk.Add(1 * time.Millisecond)
	if len(h.timeouts) != 1 {
		t.Fatalf("fallback fired %d times, want 1", len(h.timeouts))
	}
	if h.sched.Position() != 1 {
		t.Fatalf("scheduler did not advance past the audio beat")
	}
}

func TestSchedulerSpeedChangeMidBeat(t *testing.T) {
	// Wall time for the beat must equal duration/speed even when the speed
	// changes halfway through.
	pacing := Pacing{AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)
	h.sched.Load([]TimelinePoint{{ID: "b0", Kind: BeatPointReveal, DurationMs: 4000}})
	h.sched.Start()

	// 2s of content consumed at 1x, 2s remain. At 2x they take 1s of wall time.
	h.clk.Add(2 * time.Second)
	h.sched.SetSpeed(2.0)

	h.clk.Add(999 * time.Millisecond)
	if h.complete != 0 {
		t.Fatalf("beat completed early after speed change")
	}
	h.clk.Add(1 * time.Millisecond)
	if h.complete != 1 {
		t.Fatalf("beat did not complete at rescaled wall time")
	}
}

func TestSchedulerJumpSkipsWithoutRevealing(t *testing.T) {
	pacing := Pacing{SlideStartMs: 500, AnimationMs: 300, InterPointPauseMs: 500, AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)
	beats := BuildSlideTimeline(testSlide(5, 1000, false), nil, pacing, false)
	h.sched.Load(beats)
	h.sched.Start()

	// Find the reveal beat for point 2 and jump straight to it.
	target := -1
	for i, b := range beats {
		if b.Kind == BeatPointReveal && b.PointIndex == 2 {
			target = i
			break
		}
	}
	if target < 0 {
		t.Fatalf("no reveal beat for point 2")
	}
	h.beats = nil
	if err := h.sched.JumpTo(target); err != nil {
		t.Fatalf("JumpTo: %v", err)
	}

	if got := h.revealedPoints(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("jump revealed %v, want [2]", got)
	}

	// Not paused, so playback continues into point 3's animation.
	h.clk.Add(2 * time.Second)
	found := false
	for _, b := range h.beats {
		if b.Kind == BeatAnimation && b.PointIndex == 3 {
			found = true
		}
		if b.Kind == BeatPointReveal && (b.PointIndex == 0 || b.PointIndex == 1) {
			t.Fatalf("skipped point %d was revealed after jump", b.PointIndex)
		}
	}
	if !found {
		t.Fatalf("playback did not continue past the jump target")
	}
}

func TestSchedulerJumpOutOfRange(t *testing.T) {
	h := newSchedHarness(t, DefaultPacing())
	h.sched.Load([]TimelinePoint{{ID: "b0", Kind: BeatPointReveal, DurationMs: 1000}})
	h.sched.Start()

	if err := h.sched.JumpTo(5); err == nil {
		t.Fatalf("expected error for out-of-range jump")
	}
	if err := h.sched.JumpTo(-1); err == nil {
		t.Fatalf("expected error for negative jump")
	}
}

func TestSchedulerAudioFallbackTimeout(t *testing.T) {
	pacing := Pacing{AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)
	h.sched.Load([]TimelinePoint{
		{ID: "b0", Kind: BeatAudioSegment, DurationMs: 3000, AudioRef: "audio/0"},
		{ID: "b1", Kind: BeatPointReveal, DurationMs: 1000, PointIndex: 0},
	})
	h.sched.Start()

	if !h.sched.WaitingAudio() {
		t.Fatalf("scheduler not waiting on audio")
	}

	// No completion signal: the fallback fires at duration + grace.
	h.clk.Add(4999 * time.Millisecond)
	if len(h.timeouts) != 0 {
		t.Fatalf("fallback fired before duration + grace")
	}
	h.clk.Add(1 * time.Millisecond)
	if len(h.timeouts) != 1 || h.timeouts[0].AudioRef != "audio/0" {
		t.Fatalf("fallback did not fire at duration + grace: %+v", h.timeouts)
	}
	if h.sched.Position() != 1 {
		t.Fatalf("scheduler did not advance past the audio beat")
	}
}

func TestSchedulerAudioFinishedAdvancesEarly(t *testing.T) {
	pacing := Pacing{AudioGraceMs: 2000}
	h := newSchedHarness(t, pacing)
	h.sched.Load([]TimelinePoint{
		{ID: "b0", Kind: BeatAudioSegment, DurationMs: 3000, AudioRef: "audio/0"},
		{ID: "b1", Kind: BeatPointReveal, DurationMs: 1000, PointIndex: 0},
	})
	h.sched.Start()

	h.clk.Add(1 * time.Second)
	if !h.sched.AudioFinished() {
		t.Fatalf("AudioFinished not accepted while waiting")
	}
	if h.sched.Position() != 1 {
		t.Fatalf("audio completion did not advance the timeline")
	}
	if len(h.timeouts) != 0 {
		t.Fatalf("fallback ran despite real completion")
	}

	// The fallback timer was cancelled: advancing past its old deadline
	// must not double-advance.
	h.clk.Add(10 * time.Second)
	if got := h.sched.Position(); got != 1 && h.complete != 1 {
		t.Fatalf("stale fallback timer acted after cancellation")
	}
	if h.sched.AudioFinished() {
		t.Fatalf("AudioFinished accepted with no audio wait outstanding")
	}
}

func TestSchedulerStaleTimerGenerationIsInert(t *testing.T) {
	h := newSchedHarness(t, DefaultPacing())
	h.sched.Load([]TimelinePoint{
		{ID: "b0", Kind: BeatPointReveal, DurationMs: 1000, PointIndex: 0},
		{ID: "b1", Kind: BeatPointReveal, DurationMs: 1000, PointIndex: 1},
	})
	h.sched.Start()

	staleGen := h.sched.gen
	h.sched.Stop()

	// A fire queued before the cancel carries the old generation.
	h.sched.onTimerFired(staleGen)
	if h.sched.Position() != 0 || h.complete != 0 {
		t.Fatalf("stale timer fire advanced a stopped scheduler")
	}
}

func TestSchedulerStopSilences(t *testing.T) {
	h := newSchedHarness(t, DefaultPacing())
	h.sched.Load(BuildSlideTimeline(testSlide(3, 1000, false), nil, DefaultPacing(), false))
	h.sched.Start()

	h.clk.Add(1 * time.Second)
	h.sched.Stop()

	before := len(h.beats)
	h.clk.Add(time.Hour)
	if len(h.beats) != before || h.complete != 0 {
		t.Fatalf("stopped scheduler kept producing beats")
	}
}
