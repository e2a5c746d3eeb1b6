package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/mockmate-judge/internal/models"
)

func TestQuestionRepositoryListsTestCasesInStableOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	question := models.Question{
		Title: "Two Sum",
		TestCases: []models.TestCase{
			{Position: 2, Input: "c", ExpectedOutput: "3"},
			{Position: 0, Input: "a", ExpectedOutput: "1"},
			{Position: 1, Input: "b", ExpectedOutput: "2", IsHidden: true},
		},
	}
	require.NoError(t, repo.Create(ctx, &question))

	other := models.Question{Title: "Other", TestCases: []models.TestCase{{Input: "x", ExpectedOutput: "y"}}}
	require.NoError(t, repo.Create(ctx, &other))

	testCases, err := repo.ListTestCases(ctx, question.ID)
	require.NoError(t, err)
	require.Len(t, testCases, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{testCases[0].Input, testCases[1].Input, testCases[2].Input})
	require.True(t, testCases[1].IsHidden)

	stored, err := repo.GetByID(ctx, question.ID)
	require.NoError(t, err)
	require.Equal(t, "Two Sum", stored.Title)

	_, err = repo.GetByID(ctx, 999)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestQuestionRepositoryReturnsEmptyListWithoutTestCases(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)

	question := models.Question{Title: "Empty"}
	require.NoError(t, repo.Create(context.Background(), &question))

	testCases, err := repo.ListTestCases(context.Background(), question.ID)
	require.NoError(t, err)
	require.Empty(t, testCases)
}

func TestInterviewSessionRepositoryGetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInterviewSessionRepository(db)

	session := models.InterviewSession{UserID: 1, Title: "Mock interview", Status: "SCHEDULED"}
	require.NoError(t, db.Create(&session).Error)

	stored, err := repo.GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, "Mock interview", stored.Title)

	_, err = repo.GetByID(context.Background(), session.ID+1)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
