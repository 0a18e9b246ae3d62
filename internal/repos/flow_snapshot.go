package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonflow-backend/internal/logger"
	"github.com/yungbote/lessonflow-backend/internal/types"
)

type FlowSnapshotRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.FlowSnapshot) error
	GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.FlowSnapshot, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.FlowSnapshot, error)
	DeleteByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) error
}

type flowSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) FlowSnapshotRepo {
	repoLog := baseLog.With("repo", "FlowSnapshotRepo")
	return &flowSnapshotRepo{db: db, log: repoLog}
}

func (r *flowSnapshotRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.FlowSnapshot) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	// Upsert by unique user_id + lesson_id
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", row.UserID, row.LessonID).
		Assign(row).
		FirstOrCreate(row).Error; err != nil {
		return err
	}
	return nil
}

func (r *flowSnapshotRepo) GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.FlowSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.FlowSnapshot
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *flowSnapshotRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.FlowSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.FlowSnapshot
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *flowSnapshotRepo) DeleteByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Delete(&types.FlowSnapshot{}).Error
}
