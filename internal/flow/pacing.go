package flow

import "time"

// Pacing holds the timing constants of the reveal engine. Values come from
// defaults, optionally overridden by the deployment's pacing profile.
type Pacing struct {
	SlideStartMs      int `yaml:"slide_start_ms"`
	AnimationMs       int `yaml:"animation_ms"`
	InterPointPauseMs int `yaml:"inter_point_pause_ms"`
	AudioGraceMs      int `yaml:"audio_grace_ms"`
	IdleTimeoutSec    int `yaml:"idle_timeout_sec"`
	InboxSize         int `yaml:"inbox_size"`
}

func DefaultPacing() Pacing {
	return Pacing{
		SlideStartMs:      500,
		AnimationMs:       300,
		InterPointPauseMs: 500,
		AudioGraceMs:      2000,
		IdleTimeoutSec:    90,
		InboxSize:         64,
	}
}

func (p Pacing) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutSec) * time.Second
}
