package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/logger"
	apperrors "github.com/yungbote/lessonflow-backend/internal/pkg/errors"
	"github.com/yungbote/lessonflow-backend/internal/repos"
	"github.com/yungbote/lessonflow-backend/internal/types"
)

type CreateLessonInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Subject     string         `json:"subject"`
	Level       string         `json:"level"`
	Sections    []flow.Section `json:"sections"`
}

type LessonService interface {
	Create(ctx context.Context, input CreateLessonInput) (*types.Lesson, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Lesson, error)
	List(ctx context.Context) ([]*types.Lesson, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type lessonService struct {
	lessonRepo repos.LessonRepo
	log        *logger.Logger
}

func NewLessonService(lessonRepo repos.LessonRepo, log *logger.Logger) LessonService {
	return &lessonService{
		lessonRepo: lessonRepo,
		log:        log.With("service", "LessonService"),
	}
}

func (s *lessonService) Create(ctx context.Context, input CreateLessonInput) (*types.Lesson, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title required", apperrors.ErrInvalidArgument)
	}
	if len(input.Sections) == 0 {
		return nil, fmt.Errorf("%w: at least one section required", apperrors.ErrInvalidArgument)
	}
	for i, sec := range input.Sections {
		if len(sec.Slides) == 0 {
			return nil, fmt.Errorf("%w: section %d has no slides", apperrors.ErrInvalidArgument, i)
		}
	}

	raw, err := json.Marshal(input.Sections)
	if err != nil {
		return nil, fmt.Errorf("encode sections: %w", err)
	}

	row := &types.Lesson{
		Title:       input.Title,
		Description: input.Description,
		Subject:     input.Subject,
		Level:       input.Level,
		Sections:    datatypes.JSON(raw),
	}
	created, err := s.lessonRepo.Create(ctx, nil, []*types.Lesson{row})
	if err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	s.log.Info("lesson created", "lesson_id", created[0].ID.String(), "sections", len(input.Sections))
	return created[0], nil
}

func (s *lessonService) GetByID(ctx context.Context, id uuid.UUID) (*types.Lesson, error) {
	row, err := s.lessonRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lesson %s", apperrors.ErrNotFound, id)
		}
		return nil, err
	}
	return row, nil
}

func (s *lessonService) List(ctx context.Context) ([]*types.Lesson, error) {
	return s.lessonRepo.List(ctx, nil)
}

func (s *lessonService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.lessonRepo.SoftDeleteByIDs(ctx, nil, []uuid.UUID{id})
}
