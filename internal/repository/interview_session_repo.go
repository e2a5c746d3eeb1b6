package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/mockmate-judge/internal/models"
)

// InterviewSessionRepository exposes read access to interview sessions.
type InterviewSessionRepository interface {
	GetByID(ctx context.Context, id uint) (models.InterviewSession, error)
}

// NewInterviewSessionRepository constructs an interview session repository.
func NewInterviewSessionRepository(db *gorm.DB) InterviewSessionRepository {
	return &interviewSessionRepository{db: db}
}

type interviewSessionRepository struct {
	db *gorm.DB
}

func (r *interviewSessionRepository) GetByID(ctx context.Context, id uint) (models.InterviewSession, error) {
	var session models.InterviewSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return models.InterviewSession{}, err
	}
	return session, nil
}
