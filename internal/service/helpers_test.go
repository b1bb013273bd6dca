package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/lifecycle"
	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/repository"
)

var pngHeader = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
}

func setupServiceDB(t *testing.T) *gorm.DB {
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

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func multipartFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeStorage) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, name)
	return "https://files.example.com/" + name, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	intents []lifecycle.NotificationIntent
}

func (f *fakeNotifier) Deliver(_ context.Context, intents []lifecycle.NotificationIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intents...)
	return nil
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.intents))
	for _, intent := range f.intents {
		out = append(out, intent.Type)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []lifecycle.LifecycleEvent
}

func (f *fakePublisher) PublishTransition(_ context.Context, event lifecycle.LifecycleEvent, _ int, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeInvalidator struct {
	mu       sync.Mutex
	students []uint
}

func (f *fakeInvalidator) Invalidate(_ context.Context, studentID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students = append(f.students, studentID)
}

// conflictingRepo fails the first `failures` commits with a concurrency error.
type conflictingRepo struct {
	repository.DailyLogRepository
	failures int
	commits  int
}

func (r *conflictingRepo) CommitTransition(ctx context.Context, commit repository.TransitionCommit) error {
	r.commits++
	if r.commits <= r.failures {
		return repository.ErrConcurrentModification
	}
	return r.DailyLogRepository.CommitTransition(ctx, commit)
}

type logServiceFixture struct {
	db        *gorm.DB
	svc       LogService
	logs      repository.DailyLogRepository
	storage   *fakeStorage
	notifier  *fakeNotifier
	publisher *fakePublisher
	progress  *fakeInvalidator
}

func newLogServiceFixture(t *testing.T, wrap func(repository.DailyLogRepository) repository.DailyLogRepository) logServiceFixture {
	t.Helper()
	db := setupServiceDB(t)
	logs := repository.NewDailyLogRepository(db)
	if wrap != nil {
		logs = wrap(logs)
	}

	fixture := logServiceFixture{
		db:        db,
		logs:      logs,
		storage:   &fakeStorage{},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		progress:  &fakeInvalidator{},
	}

	validate := testValidator()
	activity := NewActivityService(repository.NewActivityLogRepository(db), logs, validate, zerolog.Nop())

	service := NewLogService(LogServiceDeps{
		Logs:          logs,
		Aggregates:    repository.NewAggregateRepository(db),
		Storage:       fixture.storage,
		Notifier:      fixture.notifier,
		Events:        fixture.publisher,
		Activity:      activity,
		Progress:      fixture.progress,
		Validator:     validate,
		Logger:        zerolog.Nop(),
		MaxUploadSize: 1,
	})
	clock := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	service.(*logService).now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	fixture.svc = service
	return fixture
}

var (
	studentActor = Actor{ID: 3, Role: models.RoleStudent}
	mentorActor  = Actor{ID: 11, Role: models.RoleMentor}
	advisorActor = Actor{ID: 21, Role: models.RoleAdvisor}
)
