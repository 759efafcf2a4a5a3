package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner runs readiness checkers with a per-check timeout and caches
// the combined result briefly so probe storms do not hammer dependencies.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu        sync.Mutex
	cachedAt  time.Time
	lastReady bool
	lastRes   []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && time.Since(p.cachedAt) < p.cacheTTL && p.lastRes != nil {
		return p.lastReady, p.lastRes
	}

	ready := true
	results := make([]CheckResult, 0, len(p.checkers))
	for _, c := range p.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		result := c.Check(checkCtx)
		cancel()
		if !result.Healthy {
			ready = false
		}
		results = append(results, result)
	}

	p.cachedAt = time.Now()
	p.lastReady = ready
	p.lastRes = results
	return ready, results
}

type DatabaseChecker struct {
	db *gorm.DB
}

func NewDatabaseChecker(db *gorm.DB) *DatabaseChecker { return &DatabaseChecker{db: db} }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	sqlDB, err := c.db.DB()
	if err != nil {
		return CheckResult{Name: "database", Healthy: false, Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return CheckResult{Name: "database", Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: "database", Healthy: true}
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker { return &RedisChecker{client: client} }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Name: "redis", Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: "redis", Healthy: true}
}
