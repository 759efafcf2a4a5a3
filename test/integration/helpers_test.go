package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tradepost/tradepost/internal/http/handler"
	"github.com/tradepost/tradepost/internal/http/router"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/service"
	"github.com/tradepost/tradepost/internal/uploads"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const validPassword = "Valid#Pass1234"

type testEnv struct {
	baseURL  string
	client   *http.Client
	now      *time.Time
	db       *gorm.DB
	sessions *service.SessionService
}

func newTestServer(t *testing.T) (*testEnv, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	users := repository.NewUserRepository(db)
	roles := repository.NewRoleRepository(db)
	sessions := service.NewSessionService(repository.NewSessionRepository(db), 30*time.Second).WithClock(clock)
	store := service.NewMemoryThrottleStore()
	throttle := service.NewLoginThrottle(store, 3, 30*time.Second).WithClock(clock)
	auth := service.NewAuthService(users, roles, sessions, throttle)
	posts := service.NewPostService(repository.NewPostRepository(db))
	uploadStore := uploads.NewDiskStore(t.TempDir(), 1<<20)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:  handler.NewAuthHandler(auth, sessions, uploadStore, false),
		PostHandler:  handler.NewPostHandler(posts, uploadStore),
		AdminHandler: handler.NewAdminHandler(users, posts, sessions),
		Sessions:     sessions,
	})
	server := httptest.NewServer(h)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	env := &testEnv{
		baseURL:  server.URL,
		client:   &http.Client{Jar: jar},
		now:      &now,
		db:       db,
		sessions: sessions,
	}
	return env, server.Close
}

type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

// doJSON issues a request from addr (via the forwarded header RealIP trusts)
// and decodes the response envelope. Cookies ride in the shared jar.
func (e *testEnv) doJSON(t *testing.T, method, path, addr string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if addr != "" {
		req.Header.Set("X-Forwarded-For", addr)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", raw, err)
		}
	}
	return resp, env
}

// resetClient drops all cookies, simulating a different browser.
func (e *testEnv) resetClient(t *testing.T) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	e.client.Jar = jar
}

func (e *testEnv) cookieValue(t *testing.T, name string) string {
	t.Helper()
	u, err := url.Parse(e.baseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (e *testEnv) signup(t *testing.T, email string) {
	t.Helper()
	resp, env := e.doJSON(t, http.MethodPost, "/signup", "", map[string]string{
		"full_name":        "Integration User",
		"email":            email,
		"password":         validPassword,
		"confirm_password": validPassword,
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("signup failed: status=%d envelope=%+v", resp.StatusCode, env)
	}
}

func (e *testEnv) login(t *testing.T, email, addr string) envelope {
	t.Helper()
	resp, env := e.doJSON(t, http.MethodPost, "/login", addr, map[string]string{
		"email":    email,
		"password": validPassword,
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login failed: status=%d envelope=%+v", resp.StatusCode, env)
	}
	return env
}
