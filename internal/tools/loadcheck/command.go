package loadcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradepost/tradepost/internal/tools/common"
	"github.com/tradepost/tradepost/internal/tools/loadgen"
	"github.com/tradepost/tradepost/internal/tools/ui"
)

type options struct {
	baseURL     string
	profile     string
	duration    time.Duration
	rps         int
	concurrency int
	seed        int64
	ci          bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "loadcheck", Short: "Generate API traffic and verify the service stays healthy"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "mixed", "traffic profile: auth, posts, health or mixed")
	cmd.PersistentFlags().DurationVar(&opts.duration, "duration", 10*time.Second, "how long to generate traffic")
	cmd.PersistentFlags().IntVar(&opts.rps, "rps", 20, "requests per second")
	cmd.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 6, "concurrent workers")
	cmd.PersistentFlags().Int64Var(&opts.seed, "seed", 42, "random seed")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the traffic profile and check readiness afterwards",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "loadcheck run", func(ctx context.Context) ([]string, error) {
				result, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     opts.profile,
					Duration:    opts.duration,
					RPS:         opts.rps,
					Concurrency: opts.concurrency,
					Seed:        opts.seed,
				})
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("traffic generated total=%d failures=%d elapsed=%s",
						result.TotalRequests, result.Failures, result.Elapsed.Round(time.Millisecond)),
				}
				for class, count := range result.StatusClasses {
					details = append(details, fmt.Sprintf("status %s: %d", class, count))
				}
				if result.Failures > 0 {
					return details, fmt.Errorf("%d requests failed", result.Failures)
				}

				if err := verifyReady(ctx, opts.baseURL); err != nil {
					return details, err
				}
				details = append(details, "readiness after load: ok")
				return details, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "loadcheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func verifyReady(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health/ready", nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service not ready after load: %s", resp.Status)
	}
	var payload struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	if payload.Data.Status != "ready" {
		return fmt.Errorf("unexpected readiness status %q", payload.Data.Status)
	}
	return nil
}
