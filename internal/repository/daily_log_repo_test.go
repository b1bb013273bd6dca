package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.DailyLog{},
		&models.LogAttachment{},
		&models.RevisionItem{},
		&models.StudentAggregate{},
		&models.StudentBadge{},
		&models.LogEvent{},
		&models.Notification{},
		&models.ActivityLog{},
	))
	return db
}

func seedLog(t *testing.T, repo DailyLogRepository, studentID uint, date string, status models.LogStatus) models.DailyLog {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)

	log := models.DailyLog{
		StudentID:  studentID,
		MentorID:   11,
		AdvisorID:  21,
		Date:       parsed,
		Title:      "Day " + date,
		Content:    "worked on the ingestion job",
		Activities: []string{"standup", "pairing"},
		HoursSpent: 8,
		Status:     status,
	}
	require.NoError(t, repo.Create(context.Background(), &log))
	return log
}

func TestDailyLogRepositoryListFilters(t *testing.T) {
	repo := NewDailyLogRepository(setupTestDB(t))
	ctx := context.Background()

	seedLog(t, repo, 1, "2024-01-02", models.LogStatusSubmitted)
	seedLog(t, repo, 1, "2024-01-01", models.LogStatusDraft)
	seedLog(t, repo, 2, "2024-01-01", models.LogStatusSubmitted)

	studentID := uint(1)
	logs, err := repo.List(ctx, DailyLogFilter{StudentID: &studentID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "Day 2024-01-02", logs[0].Title)
	require.Equal(t, []string{"standup", "pairing"}, logs[0].Activities)

	status := models.LogStatusSubmitted
	logs, err = repo.List(ctx, DailyLogFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	ordered, err := repo.ListByStudent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	require.Equal(t, "Day 2024-01-01", ordered[0].Title)
}

func TestDailyLogRepositoryUpdateContentChecksStatus(t *testing.T) {
	repo := NewDailyLogRepository(setupTestDB(t))
	ctx := context.Background()
	log := seedLog(t, repo, 1, "2024-01-01", models.LogStatusDraft)

	log.Content = "rewritten"
	log.SelfAssessment = &models.SelfAssessment{Reflection: "learned gorm"}
	require.NoError(t, repo.UpdateContent(ctx, &log, models.LogStatusDraft))

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	require.Equal(t, "rewritten", stored.Content)
	require.NotNil(t, stored.SelfAssessment)
	require.Equal(t, "learned gorm", stored.SelfAssessment.Reflection)

	log.Content = "stale"
	require.ErrorIs(t, repo.UpdateContent(ctx, &log, models.LogStatusNeedsRevision), ErrConcurrentModification)
}

func TestDailyLogRepositoryAttachments(t *testing.T) {
	repo := NewDailyLogRepository(setupTestDB(t))
	ctx := context.Background()
	log := seedLog(t, repo, 1, "2024-01-01", models.LogStatusDraft)

	require.NoError(t, repo.AddAttachment(ctx, &models.LogAttachment{LogID: log.ID, Kind: models.AttachmentPhoto, FileName: "a.png", URL: "https://cdn/a.png"}))
	require.NoError(t, repo.AddAttachment(ctx, &models.LogAttachment{LogID: log.ID, Kind: models.AttachmentDocument, FileName: "b.pdf", URL: "https://cdn/b.pdf"}))

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 2)
	require.Equal(t, 1, stored.CountAttachments(models.AttachmentPhoto))
	require.Equal(t, 1, stored.CountAttachments(models.AttachmentDocument))
}

func TestCommitTransitionWritesEverything(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDailyLogRepository(db)
	aggregates := NewAggregateRepository(db)
	ctx := context.Background()

	log := seedLog(t, repo, 5, "2024-01-01", models.LogStatusDraft)
	submitted := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	log.Status = models.LogStatusSubmitted
	log.SubmittedAt = &submitted
	log.XPEarned = 10

	aggregate, err := aggregates.GetOrInit(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 0, aggregate.Version)
	aggregate.TotalXP = 10
	aggregate.CurrentStreak = 1
	aggregate.LongestStreak = 1
	aggregate.EarnedBadges = []string{"first_log"}

	err = repo.CommitTransition(ctx, TransitionCommit{
		Log:            log,
		ExpectedStatus: models.LogStatusDraft,
		Aggregate:      aggregate,
		Event: models.LogEvent{
			ID:         "evt-1",
			LogID:      log.ID,
			StudentID:  5,
			FromStatus: models.LogStatusDraft,
			ToStatus:   models.LogStatusSubmitted,
			ActorRole:  models.RoleStudent,
			ActorID:    5,
			XPDelta:    10,
			OccurredAt: submitted,
		},
		Badges: []models.StudentBadge{{StudentID: 5, BadgeKey: "first_log", EarnedAt: submitted}},
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	require.Equal(t, models.LogStatusSubmitted, stored.Status)
	require.Equal(t, 10, stored.XPEarned)

	saved, err := aggregates.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 1, saved.Version)
	require.Equal(t, 10, saved.TotalXP)
	require.Equal(t, []string{"first_log"}, saved.EarnedBadges)

	badges, err := aggregates.ListBadges(ctx, 5)
	require.NoError(t, err)
	require.Len(t, badges, 1)

	events, err := aggregates.ListEvents(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 10, events[0].XPDelta)
}

func TestCommitTransitionRejectsStaleStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDailyLogRepository(db)
	ctx := context.Background()

	log := seedLog(t, repo, 5, "2024-01-01", models.LogStatusSubmitted)
	log.Status = models.LogStatusUnderReview

	err := repo.CommitTransition(ctx, TransitionCommit{
		Log:            log,
		ExpectedStatus: models.LogStatusDraft,
		Aggregate:      models.StudentAggregate{StudentID: 5, CurrentLevel: 1},
		Event:          models.LogEvent{ID: "evt-stale", LogID: log.ID, StudentID: 5, OccurredAt: time.Now()},
	})
	require.ErrorIs(t, err, ErrConcurrentModification)

	var count int64
	require.NoError(t, db.Model(&models.LogEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCommitTransitionRejectsStaleAggregateVersion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDailyLogRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.StudentAggregate{StudentID: 5, TotalXP: 30, CurrentLevel: 1, Version: 3}).Error)
	log := seedLog(t, repo, 5, "2024-01-01", models.LogStatusDraft)
	log.Status = models.LogStatusSubmitted

	err := repo.CommitTransition(ctx, TransitionCommit{
		Log:            log,
		ExpectedStatus: models.LogStatusDraft,
		Aggregate:      models.StudentAggregate{StudentID: 5, TotalXP: 40, CurrentLevel: 1, Version: 2},
		Event:          models.LogEvent{ID: "evt-version", LogID: log.ID, StudentID: 5, OccurredAt: time.Now()},
	})
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	require.Equal(t, models.LogStatusDraft, stored.Status, "log update must roll back with the aggregate")

	err = repo.CommitTransition(ctx, TransitionCommit{
		Log:            log,
		ExpectedStatus: models.LogStatusDraft,
		Aggregate:      models.StudentAggregate{StudentID: 5, TotalXP: 40, CurrentLevel: 1, Version: 3},
		Event:          models.LogEvent{ID: "evt-version-2", LogID: log.ID, StudentID: 5, OccurredAt: time.Now()},
	})
	require.NoError(t, err)
}

func TestCommitTransitionStoresRevision(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDailyLogRepository(db)
	ctx := context.Background()

	log := seedLog(t, repo, 5, "2024-01-01", models.LogStatusNeedsRevision)
	log.Status = models.LogStatusRevised
	log.Content = "expanded content"

	err := repo.CommitTransition(ctx, TransitionCommit{
		Log:            log,
		ExpectedStatus: models.LogStatusNeedsRevision,
		Revision:       &models.RevisionItem{PreviousContent: "worked on the ingestion job", NewContent: "expanded content", Reason: "more detail"},
		Aggregate:      models.StudentAggregate{StudentID: 5, CurrentLevel: 1},
		Event:          models.LogEvent{ID: "evt-rev", LogID: log.ID, StudentID: 5, OccurredAt: time.Now()},
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	require.Equal(t, "expanded content", stored.Content)
	require.Len(t, stored.RevisionHistory, 1)
	require.Equal(t, "more detail", stored.RevisionHistory[0].Reason)
}

func TestNotificationRepositoryInbox(t *testing.T) {
	repo := NewNotificationRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: "3", Type: "log.approved", Message: "approved"}))
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: "3", Type: "badge.earned", Message: "badge"}))
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: "4", Type: "log.submitted", Message: "other"}))

	unread, err := repo.CountUnread(ctx, "3")
	require.NoError(t, err)
	require.Equal(t, int64(2), unread)

	items, err := repo.List(ctx, NotificationFilter{UserID: "3"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	marked, err := repo.MarkRead(ctx, items[0].ID, "3")
	require.NoError(t, err)
	require.True(t, marked.Read)

	_, err = repo.MarkRead(ctx, items[0].ID, "4")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	affected, err := repo.MarkAllRead(ctx, "3")
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	items, err = repo.List(ctx, NotificationFilter{UserID: "3", UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestActivityLogRepositoryFilters(t *testing.T) {
	repo := NewActivityLogRepository(setupTestDB(t))
	ctx := context.Background()
	logID := uint(9)

	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "student", Action: "log.created", EntityType: "daily_log", EntityID: &logID}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 2, ActorRole: "mentor", Action: "log.approved", EntityType: "daily_log", EntityID: &logID}))

	otherLog := uint(10)
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "student", Action: "log.created", EntityType: EntityDailyLog, EntityID: &otherLog}))

	entries, total, err := repo.List(ctx, ActivityLogFilter{LogID: &logID})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	entries, total, err = repo.List(ctx, ActivityLogFilter{Actions: []string{"log.created"}})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	actor := uint(2)
	entries, total, err = repo.List(ctx, ActivityLogFilter{ActorID: &actor, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "log.approved", entries[0].Action)
}
