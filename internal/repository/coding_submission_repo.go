package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/mockmate-judge/internal/models"
)

// CodingSubmissionFilter narrows submission listings. UserID is always applied.
type CodingSubmissionFilter struct {
	UserID             uint
	QuestionID         *uint
	InterviewSessionID *uint
}

// CodingSubmissionRepository exposes persistence helpers for coding submissions.
type CodingSubmissionRepository interface {
	Create(ctx context.Context, submission *models.CodingSubmission) error
	Update(ctx context.Context, submission *models.CodingSubmission) error
	GetByID(ctx context.Context, id uint) (models.CodingSubmission, error)
	List(ctx context.Context, filter CodingSubmissionFilter) ([]models.CodingSubmission, error)
}

// NewCodingSubmissionRepository constructs a coding submission repository.
func NewCodingSubmissionRepository(db *gorm.DB) CodingSubmissionRepository {
	return &codingSubmissionRepository{db: db}
}

type codingSubmissionRepository struct {
	db *gorm.DB
}

func (r *codingSubmissionRepository) Create(ctx context.Context, submission *models.CodingSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *codingSubmissionRepository) Update(ctx context.Context, submission *models.CodingSubmission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *codingSubmissionRepository) GetByID(ctx context.Context, id uint) (models.CodingSubmission, error) {
	var submission models.CodingSubmission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.CodingSubmission{}, err
	}
	return submission, nil
}

func (r *codingSubmissionRepository) List(ctx context.Context, filter CodingSubmissionFilter) ([]models.CodingSubmission, error) {
	db := r.db.WithContext(ctx).Model(&models.CodingSubmission{}).Where("user_id = ?", filter.UserID)

	if filter.QuestionID != nil {
		db = db.Where("question_id = ?", *filter.QuestionID)
	}
	if filter.InterviewSessionID != nil {
		db = db.Where("interview_session_id = ?", *filter.InterviewSessionID)
	}

	var submissions []models.CodingSubmission
	if err := db.Order("submitted_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
