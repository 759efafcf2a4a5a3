package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/health"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{
		ShutdownTimeout:          10 * time.Second,
		ShutdownHTTPDrainTimeout: 2 * time.Second,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	readiness := health.NewProbeRunner(100*time.Millisecond, 50*time.Millisecond)
	stopped := false
	stop := func() { stopped = true }

	a := New(cfg, log, server, nil, nil, readiness, stop)
	if a.Config != cfg || a.Logger != log || a.Server != server || a.Readiness != readiness {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout || a.ShutdownHTTPDrainTimeout != cfg.ShutdownHTTPDrainTimeout {
		t.Fatal("expected app shutdown timeouts copied from config")
	}

	a.StopBackgroundTasks()
	if !stopped {
		t.Fatal("expected stop callback to be invoked")
	}
}

func TestSessionSweeperPurgesIdleSessions(t *testing.T) {
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

	now := time.Now()
	repo := repository.NewSessionRepository(db)
	sessions := service.NewSessionService(repo, 30*time.Second).
		WithClock(func() time.Time { return now })

	created, err := sessions.Create(t.Context(), 7, []string{"user"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	now = now.Add(time.Minute)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	stop := StartSessionSweeper(sessions, 10*time.Millisecond, log)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := repo.FindBySessionID(created.SessionID); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the sweeper to purge the idle session")
}
