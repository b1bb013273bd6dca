package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/repository"
)

func TestProgressServiceCachesUntilInvalidated(t *testing.T) {
	db := setupServiceDB(t)

	lastSubmission := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	aggregate := models.StudentAggregate{
		StudentID:          3,
		TotalXP:            120,
		CurrentLevel:       2,
		CurrentStreak:      3,
		LongestStreak:      3,
		LastSubmissionDate: &lastSubmission,
		EarnedBadges:       []string{"streak_3", "first_log"},
		Version:            4,
	}
	require.NoError(t, db.Create(&aggregate).Error)
	earnedAt := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.StudentBadge{StudentID: 3, BadgeKey: "first_log", EarnedAt: earnedAt}).Error)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewProgressService(repository.NewAggregateRepository(db), redisClient, time.Minute, zerolog.Nop())
	ctx := context.Background()

	progress, err := svc.GetProgress(ctx, studentActor, 3)
	require.NoError(t, err)
	require.Equal(t, 120, progress.TotalXP)
	require.Equal(t, 2, progress.Level.Number)
	require.Equal(t, "apprentice", progress.Level.Name)
	require.Equal(t, 20, progress.XPIntoLevel)
	require.Equal(t, 130, progress.XPToNext)
	require.Equal(t, 13, progress.Percent)
	require.NotNil(t, progress.LastSubmissionDate)
	require.Equal(t, "2024-01-03", *progress.LastSubmissionDate)

	// catalog order, not earn order
	require.Len(t, progress.Badges, 2)
	require.Equal(t, "first_log", progress.Badges[0].Key)
	require.NotNil(t, progress.Badges[0].EarnedAt)
	require.True(t, earnedAt.Equal(*progress.Badges[0].EarnedAt))
	require.Equal(t, "streak_3", progress.Badges[1].Key)
	require.Nil(t, progress.Badges[1].EarnedAt)
	require.True(t, mr.Exists(progressCacheKey(3)))

	require.NoError(t, db.Model(&models.StudentAggregate{}).Where("student_id = ?", 3).Update("total_xp", 300).Error)

	cached, err := svc.GetProgress(ctx, mentorActor, 3)
	require.NoError(t, err)
	require.Equal(t, 120, cached.TotalXP)

	svc.Invalidate(ctx, 3)
	require.False(t, mr.Exists(progressCacheKey(3)))

	fresh, err := svc.GetProgress(ctx, studentActor, 3)
	require.NoError(t, err)
	require.Equal(t, 300, fresh.TotalXP)
	require.Equal(t, 3, fresh.Level.Number)
}

func TestProgressServiceDefaultsForNewStudent(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewProgressService(repository.NewAggregateRepository(db), nil, 0, zerolog.Nop())

	progress, err := svc.GetProgress(context.Background(), Actor{ID: 9, Role: models.RoleStudent}, 9)
	require.NoError(t, err)
	require.Zero(t, progress.TotalXP)
	require.Equal(t, 1, progress.Level.Number)
	require.Equal(t, 100, progress.XPToNext)
	require.Empty(t, progress.Badges)
	require.Nil(t, progress.LastSubmissionDate)
}

func TestProgressServiceRejectsOtherStudents(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewProgressService(repository.NewAggregateRepository(db), nil, time.Minute, zerolog.Nop())

	_, err := svc.GetProgress(context.Background(), studentActor, 4)
	require.ErrorIs(t, err, ErrProgressForbidden)
}

func TestProgressServiceCatalogs(t *testing.T) {
	svc := NewProgressService(nil, nil, time.Minute, zerolog.Nop())

	levels := svc.Levels()
	require.Len(t, levels, 10)
	require.Equal(t, "newcomer", levels[0].Name)
	require.NotNil(t, levels[0].MaxXP)
	require.Equal(t, 100, *levels[0].MaxXP)
	require.Nil(t, levels[9].MaxXP)

	badges := svc.Badges()
	require.Len(t, badges, 13)
	require.Equal(t, "first_log", badges[0].Key)
	require.Equal(t, "badges.first_log.name", badges[0].NameKey)
}

func TestProgressServiceHistory(t *testing.T) {
	fixture := newLogServiceFixture(t, nil)
	log := createDraft(t, fixture.svc, "2024-01-01")
	transition(t, fixture.svc, studentActor, log.ID, dto.TransitionRequest{Target: "submitted"})
	transition(t, fixture.svc, mentorActor, log.ID, dto.TransitionRequest{Target: "under_review"})

	svc := NewProgressService(repository.NewAggregateRepository(fixture.db), nil, time.Minute, zerolog.Nop())

	history, err := svc.History(context.Background(), studentActor, studentActor.ID, dto.XPHistoryQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, history, 1)

	history, err = svc.History(context.Background(), advisorActor, studentActor.ID, dto.XPHistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	total := 0
	for _, entry := range history {
		total += entry.XPDelta
	}
	require.Equal(t, 10, total)

	_, err = svc.History(context.Background(), Actor{ID: 4, Role: models.RoleStudent}, studentActor.ID, dto.XPHistoryQuery{})
	require.ErrorIs(t, err, ErrProgressForbidden)

	events, err := fixture.svc.Events(context.Background(), mentorActor, log.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "submitted", events[0].To)
	require.EqualValues(t, 10, events[0].Awards["submit"])
}
