package dto

import (
	"time"

	"github.com/noah-isme/mockmate-judge/internal/models"
)

// SubmitCodeRequest represents the payload for creating a graded submission.
type SubmitCodeRequest struct {
	QuestionID         uint   `json:"question_id" validate:"required,gt=0"`
	InterviewSessionID *uint  `json:"interview_session_id,omitempty" validate:"omitempty,gt=0"`
	Code               string `json:"code" validate:"required"`
	Language           string `json:"language" validate:"required"`
}

// CodingSubmissionFilter narrows submission listings.
type CodingSubmissionFilter struct {
	QuestionID         *uint
	InterviewSessionID *uint
}

// CodingSubmissionResponse represents a coding submission to API consumers.
type CodingSubmissionResponse struct {
	ID                 uint       `json:"id"`
	UserID             uint       `json:"user_id"`
	QuestionID         uint       `json:"question_id"`
	InterviewSessionID *uint      `json:"interview_session_id,omitempty"`
	Code               string     `json:"code"`
	Language           string     `json:"language"`
	Status             string     `json:"status"`
	Score              *float64   `json:"score,omitempty"`
	TestCasesPassed    *int       `json:"test_cases_passed,omitempty"`
	TotalTestCases     *int       `json:"total_test_cases,omitempty"`
	Feedback           string     `json:"feedback"`
	CompilationError   string     `json:"compilation_error,omitempty"`
	RuntimeError       string     `json:"runtime_error,omitempty"`
	ExecutionTimeMs    *int64     `json:"execution_time_ms,omitempty"`
	SubmittedAt        time.Time  `json:"submitted_at"`
	EvaluatedAt        *time.Time `json:"evaluated_at,omitempty"`
}

// CodeTestRequest is an ad-hoc run without grading or persistence.
type CodeTestRequest struct {
	Code     string `json:"code" validate:"required"`
	Language string `json:"language" validate:"required"`
	Input    string `json:"input"`
}

// CodeTestResponse reports the outcome of an ad-hoc run.
type CodeTestResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// NewCodingSubmissionResponse builds a response DTO from a model.
func NewCodingSubmissionResponse(submission models.CodingSubmission) CodingSubmissionResponse {
	return CodingSubmissionResponse{
		ID:                 submission.ID,
		UserID:             submission.UserID,
		QuestionID:         submission.QuestionID,
		InterviewSessionID: submission.InterviewSessionID,
		Code:               submission.Code,
		Language:           submission.Language,
		Status:             string(submission.Status),
		Score:              submission.Score,
		TestCasesPassed:    submission.TestCasesPassed,
		TotalTestCases:     submission.TotalTestCases,
		Feedback:           submission.Feedback,
		CompilationError:   submission.CompilationError,
		RuntimeError:       submission.RuntimeError,
		ExecutionTimeMs:    submission.ExecutionTimeMs,
		SubmittedAt:        submission.SubmittedAt,
		EvaluatedAt:        submission.EvaluatedAt,
	}
}

// NewCodingSubmissionResponses converts a slice of submissions.
func NewCodingSubmissionResponses(submissions []models.CodingSubmission) []CodingSubmissionResponse {
	responses := make([]CodingSubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewCodingSubmissionResponse(submission))
	}
	return responses
}
