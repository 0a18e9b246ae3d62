package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/logger"
)

func TestLoadPacingDefaultsWithoutFile(t *testing.T) {
	t.Setenv("LESSONFLOW_PACING_FILE", "")

	pacing, err := loadPacing(logger.NewNop())
	if err != nil {
		t.Fatalf("loadPacing: %v", err)
	}
	if pacing != flow.DefaultPacing() {
		t.Fatalf("pacing = %+v, want defaults", pacing)
	}
}

func TestLoadPacingPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacing.yaml")
	content := "slide_start_ms: 250\nidle_timeout_sec: 30\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write pacing file: %v", err)
	}
	t.Setenv("LESSONFLOW_PACING_FILE", path)

	pacing, err := loadPacing(logger.NewNop())
	if err != nil {
		t.Fatalf("loadPacing: %v", err)
	}
	if pacing.SlideStartMs != 250 {
		t.Fatalf("SlideStartMs = %d, want 250", pacing.SlideStartMs)
	}
	if pacing.IdleTimeoutSec != 30 {
		t.Fatalf("IdleTimeoutSec = %d, want 30", pacing.IdleTimeoutSec)
	}
	// Fields absent from the file keep their defaults.
	if pacing.AnimationMs != flow.DefaultPacing().AnimationMs {
		t.Fatalf("AnimationMs = %d, want default %d", pacing.AnimationMs, flow.DefaultPacing().AnimationMs)
	}
	if pacing.InboxSize != flow.DefaultPacing().InboxSize {
		t.Fatalf("InboxSize = %d, want default %d", pacing.InboxSize, flow.DefaultPacing().InboxSize)
	}
}

func TestLoadPacingMissingFileFallsBack(t *testing.T) {
	t.Setenv("LESSONFLOW_PACING_FILE", "/nonexistent/pacing.yaml")

	pacing, err := loadPacing(logger.NewNop())
	if err == nil {
		t.Fatalf("expected error for missing pacing file")
	}
	if pacing != flow.DefaultPacing() {
		t.Fatalf("pacing = %+v, want defaults on failure", pacing)
	}
}
