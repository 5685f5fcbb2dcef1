package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/http/handler"
	"attendance-session-service/internal/http/router"
	"attendance-session-service/internal/repository"
	"attendance-session-service/internal/security"
	"attendance-session-service/internal/service"
)

type testEnv struct {
	baseURL string
	client  *http.Client
	jwtMgr  *security.JWTManager
	roster  repository.RosterRepository
	leave   repository.LeaveRepository
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAttendanceTestServer(t *testing.T) (*testEnv, func()) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.AttendanceRecord{},
		&repository.SessionClass{},
		&domain.Enrollment{},
		&domain.ManagedClass{},
		&domain.LeaveRequest{},
	); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	sessions := repository.NewSessionRepository(db)
	roster := repository.NewRosterRepository(db)
	leave := repository.NewLeaveRepository(db)
	scopes := service.NewScopeResolver(service.NewInMemoryRosterCacheStore(), roster, time.Minute)
	lifecycle := service.NewLifecycleService(sessions, roster, leave, scopes, time.Minute)
	checkIn := service.NewCheckInService(sessions, lifecycle, 0)
	stats := service.NewStatisticsService(sessions, lifecycle, scopes)
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")

	srv := httptest.NewServer(router.NewRouter(router.Dependencies{
		AttendanceHandler:   handler.NewAttendanceHandler(lifecycle, checkIn, stats),
		JWTManager:          jwtMgr,
		APIRateLimitRPM:     10000,
		CheckInRateLimitRPM: 10000,
	}))

	env := &testEnv{
		baseURL: srv.URL,
		client:  srv.Client(),
		jwtMgr:  jwtMgr,
		roster:  roster,
		leave:   leave,
	}
	return env, srv.Close
}

func (e *testEnv) token(t *testing.T, userID string, role domain.Role, classIDs []string) string {
	t.Helper()
	token, err := e.jwtMgr.SignAccessToken(userID, role, classIDs, time.Hour)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, url, err)
	}
	return resp, env
}
