package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config drives one load run against a tradepost deployment.
type Config struct {
	BaseURL     string
	Profile     string // "auth", "posts", "health" or "mixed"
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
	Elapsed       time.Duration
}

type request struct {
	method string
	path   string
	body   []byte
}

// Run issues profile-shaped traffic until the duration elapses or ctx is
// cancelled. Failures are transport errors and 5xx responses; throttle and
// auth rejections are expected traffic, not failures.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("base url is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	profile := normalizeProfile(cfg.Profile)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	work := make(chan request)
	var (
		mu     sync.Mutex
		result = Result{StatusClasses: make(map[string]int64)}
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range work {
				status, err := issue(runCtx, client, cfg.BaseURL, req)
				mu.Lock()
				result.TotalRequests++
				if err != nil {
					result.Failures++
					result.StatusClasses["error"]++
				} else {
					class := classifyStatusClass(status)
					result.StatusClasses[class]++
					if class == "5xx" {
						result.Failures++
					}
				}
				mu.Unlock()
			}
		}()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	started := time.Now()
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			select {
			case work <- nextRequest(rng, profile):
			case <-runCtx.Done():
				break loop
			}
		}
	}
	ticker.Stop()
	close(work)
	wg.Wait()

	result.Elapsed = time.Since(started)
	return result, nil
}

func issue(ctx context.Context, client *http.Client, baseURL string, req request) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, strings.TrimRight(baseURL, "/")+req.path, bytes.NewReader(req.body))
	if err != nil {
		return 0, err
	}
	if len(req.body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func nextRequest(rng *rand.Rand, profile string) request {
	switch profile {
	case "health":
		return request{method: http.MethodGet, path: "/health/ready"}
	case "auth":
		return authRequest(rng)
	case "posts":
		return request{method: http.MethodGet, path: "/posts"}
	default:
		switch rng.Intn(3) {
		case 0:
			return authRequest(rng)
		case 1:
			return request{method: http.MethodGet, path: "/posts"}
		default:
			return request{method: http.MethodGet, path: "/health/live"}
		}
	}
}

func authRequest(rng *rand.Rand) request {
	body, _ := json.Marshal(map[string]string{
		"email":    fmt.Sprintf("load-%d@example.com", rng.Intn(1000)),
		"password": "definitely-not-right-1!",
	})
	return request{method: http.MethodPost, path: "/login", body: body}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return "mixed"
	}
	return profile
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}
