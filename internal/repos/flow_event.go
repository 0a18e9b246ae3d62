package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonflow-backend/internal/logger"
	"github.com/yungbote/lessonflow-backend/internal/types"
)

type FlowEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.FlowEvent) ([]*types.FlowEvent, error)
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.FlowEvent, error)
	GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID, limit int) ([]*types.FlowEvent, error)
}

type flowEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowEventRepo(db *gorm.DB, baseLog *logger.Logger) FlowEventRepo {
	repoLog := baseLog.With("repo", "FlowEventRepo")
	return &flowEventRepo{db: db, log: repoLog}
}

func (r *flowEventRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.FlowEvent) ([]*types.FlowEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.FlowEvent{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *flowEventRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.FlowEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.FlowEvent
	if sessionID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *flowEventRepo) GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID, limit int) ([]*types.FlowEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.FlowEvent
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return results, nil
	}

	q := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
