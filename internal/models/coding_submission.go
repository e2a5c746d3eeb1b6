package models

import "time"

// SubmissionStatus enumerates the lifecycle states of a coding submission.
type SubmissionStatus string

// Lifecycle states. COMPLETED, FAILED and TIMEOUT are terminal.
const (
	SubmissionStatusPending   SubmissionStatus = "PENDING"
	SubmissionStatusCompiling SubmissionStatus = "COMPILING"
	SubmissionStatusRunning   SubmissionStatus = "RUNNING"
	SubmissionStatusCompleted SubmissionStatus = "COMPLETED"
	SubmissionStatusFailed    SubmissionStatus = "FAILED"
	SubmissionStatusTimeout   SubmissionStatus = "TIMEOUT"
)

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusPending:   {SubmissionStatusCompiling, SubmissionStatusFailed},
	SubmissionStatusCompiling: {SubmissionStatusRunning, SubmissionStatusCompleted, SubmissionStatusFailed},
	SubmissionStatusRunning:   {SubmissionStatusCompleted, SubmissionStatusFailed, SubmissionStatusTimeout},
}

// Terminal reports whether no further transition is allowed from s.
func (s SubmissionStatus) Terminal() bool {
	switch s {
	case SubmissionStatusCompleted, SubmissionStatusFailed, SubmissionStatusTimeout:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CodingSubmission is one user's attempt at a coding question and its graded outcome.
type CodingSubmission struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	UserID             uint             `gorm:"not null;index" json:"user_id"`
	QuestionID         uint             `gorm:"not null;index" json:"question_id"`
	InterviewSessionID *uint            `gorm:"index" json:"interview_session_id"`
	Code               string           `gorm:"type:text;not null" json:"code"`
	Language           string           `gorm:"size:32;not null" json:"language"`
	Status             SubmissionStatus `gorm:"size:32;not null;index" json:"status"`
	Score              *float64         `json:"score"`
	TestCasesPassed    *int             `json:"test_cases_passed"`
	TotalTestCases     *int             `json:"total_test_cases"`
	ExecutionTimeMs    *int64           `json:"execution_time_ms"`
	Feedback           string           `gorm:"type:text" json:"feedback"`
	CompilationError   string           `gorm:"type:text" json:"compilation_error"`
	RuntimeError       string           `gorm:"type:text" json:"runtime_error"`
	SubmittedAt        time.Time        `gorm:"not null" json:"submitted_at"`
	EvaluatedAt        *time.Time       `json:"evaluated_at"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsTerminal reports whether grading has finished.
func (s CodingSubmission) IsTerminal() bool {
	return s.Status.Terminal()
}
