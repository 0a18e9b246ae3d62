package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/logger"
	"github.com/yungbote/lessonflow-backend/internal/repos"
	"github.com/yungbote/lessonflow-backend/internal/types"
)

// SnapshotService is the flow engine's persistence sink: one upserted
// snapshot row per (user, lesson) plus an append-only transition log.
type SnapshotService interface {
	SaveSnapshot(ctx context.Context, snap flow.Snapshot) error
	RecordTransition(ctx context.Context, snap flow.Snapshot, event string, from, to flow.State) error
}

type snapshotService struct {
	snapshotRepo repos.FlowSnapshotRepo
	eventRepo    repos.FlowEventRepo
	log          *logger.Logger
}

func NewSnapshotService(snapshotRepo repos.FlowSnapshotRepo, eventRepo repos.FlowEventRepo, log *logger.Logger) SnapshotService {
	return &snapshotService{
		snapshotRepo: snapshotRepo,
		eventRepo:    eventRepo,
		log:          log.With("service", "SnapshotService"),
	}
}

func (s *snapshotService) SaveSnapshot(ctx context.Context, snap flow.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	row := &types.FlowSnapshot{
		UserID:        snap.UserID,
		LessonID:      snap.LessonID,
		SessionID:     snap.SessionID,
		CurrentState:  string(snap.CurrentState),
		PreviousState: string(snap.PreviousState),
		Payload:       datatypes.JSON(payload),
		Terminal:      snap.CurrentState.Terminal(),
	}
	if err := s.snapshotRepo.Upsert(ctx, nil, row); err != nil {
		return fmt.Errorf("upsert flow snapshot: %w", err)
	}
	return nil
}

func (s *snapshotService) RecordTransition(ctx context.Context, snap flow.Snapshot, event string, from, to flow.State) error {
	cursors, err := json.Marshal(snap.Cursors)
	if err != nil {
		return fmt.Errorf("encode cursors: %w", err)
	}
	row := &types.FlowEvent{
		UserID:    snap.UserID,
		LessonID:  snap.LessonID,
		SessionID: snap.SessionID,
		Event:     event,
		FromState: string(from),
		ToState:   string(to),
		Payload:   datatypes.JSON(cursors),
	}
	if _, err := s.eventRepo.Create(ctx, nil, []*types.FlowEvent{row}); err != nil {
		return fmt.Errorf("append flow event: %w", err)
	}
	return nil
}
