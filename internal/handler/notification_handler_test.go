package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/handler"
	"github.com/noah-isme/internlog-api/internal/lifecycle"
)

type stubNotificationService struct {
	mu          sync.Mutex
	lastUser    string
	lastQuery   dto.NotificationListQuery
	subscribers map[string]chan dto.NotificationResponse
}

func newStubNotificationService() *stubNotificationService {
	return &stubNotificationService{subscribers: make(map[string]chan dto.NotificationResponse)}
}

func (s *stubNotificationService) Deliver(context.Context, []lifecycle.NotificationIntent) error {
	return nil
}

func (s *stubNotificationService) List(_ context.Context, userID string, query dto.NotificationListQuery) (dto.NotificationListResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUser, s.lastQuery = userID, query
	return dto.NotificationListResponse{
		Items:       []dto.NotificationResponse{{ID: 1, UserID: userID, Type: "log.approved", Message: "Daily log approved: Day one"}},
		UnreadCount: 1,
	}, nil
}

func (s *stubNotificationService) MarkRead(_ context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{ID: id, UserID: userID, Read: true}, nil
}

func (s *stubNotificationService) MarkAllRead(context.Context, string) (int64, error) {
	return 4, nil
}

func (s *stubNotificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse, 1)
	ch <- dto.NotificationResponse{ID: 99, UserID: userID, Type: "badge.earned", Message: "You earned the first_log badge"}

	s.mu.Lock()
	s.subscribers[userID] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func (s *stubNotificationService) Start(context.Context) {}

func newNotificationApp(svc *stubNotificationService, id uint) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v2/notifications", withActor(id, "student"))
	handler.NewNotificationHandler(svc, zerolog.Nop(), time.Second).Register(group)
	return app
}

func TestNotificationHandlerList(t *testing.T) {
	svc := newStubNotificationService()
	app := newNotificationApp(svc, 3)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/notifications?limit=5&unread=true", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.NotificationListResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data.Items, 1)
	require.Equal(t, "3", svc.lastUser)
	require.Equal(t, 5, svc.lastQuery.Limit)
	require.True(t, svc.lastQuery.UnreadOnly)
}

func TestNotificationHandlerRequiresUser(t *testing.T) {
	app := fiber.New()
	handler.NewNotificationHandler(newStubNotificationService(), zerolog.Nop(), time.Second).Register(app.Group("/api/v2/notifications"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/notifications", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	app := newNotificationApp(newStubNotificationService(), 3)

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/api/v2/notifications/8/read", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var single struct {
		Data dto.NotificationResponse `json:"data"`
	}
	decodeResponse(t, resp, &single)
	require.True(t, single.Data.Read)
	require.Equal(t, uint(8), single.Data.ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodPatch, "/api/v2/notifications/read-all", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var all struct {
		Data map[string]int64 `json:"data"`
	}
	decodeResponse(t, resp, &all)
	require.Equal(t, int64(4), all.Data["updated"])
}

func TestNotificationHandlerStreamsSSE(t *testing.T) {
	app := newNotificationApp(newStubNotificationService(), 3)
	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/api/v2/notifications/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			var notification dto.NotificationResponse
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &notification))
			require.Equal(t, "badge.earned", notification.Type)
			require.Equal(t, "3", notification.UserID)
			return
		}
	}
}

func TestNotificationHandlerStreamsWebsocket(t *testing.T) {
	app := newNotificationApp(newStubNotificationService(), 3)
	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v2/notifications/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var notification dto.NotificationResponse
	require.NoError(t, conn.ReadJSON(&notification))
	require.Equal(t, uint(99), notification.ID)
	require.Equal(t, "3", notification.UserID)
}

func TestNotificationHandlerRejectsPlainWebsocketRequests(t *testing.T) {
	app := newNotificationApp(newStubNotificationService(), 3)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/notifications/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
