package models

import "time"

// Question is a coding problem graded against its test cases.
type Question struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	Content    string     `gorm:"type:text" json:"content"`
	Difficulty string     `gorm:"size:32" json:"difficulty"`
	Points     int        `gorm:"default:10" json:"points"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	TestCases  []TestCase `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TestCase is an input/expected-output pair belonging to one question.
type TestCase struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	QuestionID     uint      `gorm:"not null;index" json:"question_id"`
	Position       int       `gorm:"not null;default:0" json:"position"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text;not null" json:"expected_output"`
	IsHidden       bool      `gorm:"default:false" json:"is_hidden"`
	Points         int       `gorm:"default:1" json:"points"`
	Description    string    `gorm:"size:255" json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}
