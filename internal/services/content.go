package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/logger"
	apperrors "github.com/yungbote/lessonflow-backend/internal/pkg/errors"
	"github.com/yungbote/lessonflow-backend/internal/repos"
)

// ContentService serves lesson structure and per-slide pacing to the flow
// engine from the lesson table.
type ContentService interface {
	GetLessonStructure(ctx context.Context, lessonID uuid.UUID) (*flow.LessonStructure, error)
	GetSlideBeats(ctx context.Context, lessonID uuid.UUID, sectionIndex, slideIndex int) (*flow.SlideBeats, error)
}

type contentService struct {
	lessonRepo repos.LessonRepo
	log        *logger.Logger
}

func NewContentService(lessonRepo repos.LessonRepo, log *logger.Logger) ContentService {
	return &contentService{
		lessonRepo: lessonRepo,
		log:        log.With("service", "ContentService"),
	}
}

func (s *contentService) GetLessonStructure(ctx context.Context, lessonID uuid.UUID) (*flow.LessonStructure, error) {
	row, err := s.lessonRepo.GetByID(ctx, nil, lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lesson %s", apperrors.ErrNotFound, lessonID)
		}
		return nil, fmt.Errorf("load lesson %s: %w", lessonID, err)
	}

	var sections []flow.Section
	if err := json.Unmarshal(row.Sections, &sections); err != nil {
		return nil, fmt.Errorf("decode lesson sections %s: %w", lessonID, err)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: lesson %s has no sections", apperrors.ErrInvalidArgument, lessonID)
	}

	return &flow.LessonStructure{
		LessonID: row.ID,
		Title:    row.Title,
		Sections: sections,
	}, nil
}

func (s *contentService) GetSlideBeats(ctx context.Context, lessonID uuid.UUID, sectionIndex, slideIndex int) (*flow.SlideBeats, error) {
	row, err := s.lessonRepo.GetByID(ctx, nil, lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lesson %s", apperrors.ErrNotFound, lessonID)
		}
		return nil, fmt.Errorf("load lesson %s: %w", lessonID, err)
	}

	if len(row.Beats) == 0 {
		// No authored pacing. The scheduler falls back to slide durations.
		return nil, nil
	}

	// Beats are authored as a nested array indexed [section][slide].
	var beats [][]*flow.SlideBeats
	if err := json.Unmarshal(row.Beats, &beats); err != nil {
		s.log.Warn("undecodable beats payload, using defaults", "lesson_id", lessonID.String(), "error", err)
		return nil, nil
	}
	if sectionIndex < 0 || sectionIndex >= len(beats) {
		return nil, nil
	}
	slides := beats[sectionIndex]
	if slideIndex < 0 || slideIndex >= len(slides) {
		return nil, nil
	}
	return slides[slideIndex], nil
}
