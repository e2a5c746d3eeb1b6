package database

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mockmate-judge/internal/models"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	db, err := Connect("sqlite", "file:database_test?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	question := models.Question{Title: "Reverse", TestCases: []models.TestCase{{Input: "ab", ExpectedOutput: "ba"}}}
	require.NoError(t, db.Create(&question).Error)

	var count int64
	require.NoError(t, db.Model(&models.TestCase{}).Where("question_id = ?", question.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("mysql", "dsn")
	require.Error(t, err)

	_, err = ConnectPostgres("")
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client, err := ConnectRedis(context.Background(), "redis://"+mini.Addr(), zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	_, err = ConnectRedis(context.Background(), "", zerolog.Nop())
	require.Error(t, err)

	mini.Close()
	_, err = ConnectRedis(context.Background(), "redis://"+mini.Addr(), zerolog.Nop())
	require.Error(t, err)
}

func TestConnectNATSRequiresURL(t *testing.T) {
	_, err := ConnectNATS("", "judge", zerolog.Nop())
	require.Error(t, err)
}
