package attendgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config drives a synthetic check-in storm against a running server: many
// students presenting (mostly wrong) codes at once, which is exactly the
// traffic shape a projected QR code produces.
type Config struct {
	BaseURL     string
	SessionID   string
	Code        string
	Tokens      []string
	Students    int
	RPS         int
	Duration    time.Duration
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusCounts  map[string]int64
}

func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Students <= 0 {
		cfg.Students = 30
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	client := &http.Client{Timeout: 5 * time.Second}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/attendances/" + cfg.SessionID + "/checkin"

	var total, failures int64
	statusMu := sync.Mutex{}
	statusCounts := make(map[string]int64)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for studentIdx := range jobs {
				status, err := fire(ctx, client, endpoint, cfg, studentIdx)
				atomic.AddInt64(&total, 1)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				class := classifyStatusClass(status)
				statusMu.Lock()
				statusCounts[class]++
				statusMu.Unlock()
			}
		}()
	}

	var seq int
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			select {
			case jobs <- rng.Intn(cfg.Students):
				seq++
			case <-ctx.Done():
				break loop
			}
		}
	}
	close(jobs)
	wg.Wait()

	return &Result{TotalRequests: total, Failures: failures, StatusCounts: statusCounts}, nil
}

func fire(ctx context.Context, client *http.Client, endpoint string, cfg Config, studentIdx int) (int, error) {
	code := cfg.Code
	if code == "" {
		code = fmt.Sprintf("bogus-code-%d", studentIdx)
	}
	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(cfg.Tokens) > 0 {
		req.Header.Set("Authorization", "Bearer "+cfg.Tokens[studentIdx%len(cfg.Tokens)])
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
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
