package attendgen

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cfg := Config{}
	var tokensFlag []string
	cmd := &cobra.Command{
		Use:   "attendgen",
		Short: "Generate synthetic check-in traffic against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Tokens = tokensFlag
			res, err := Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Printf("requests=%d failures=%d\n", res.TotalRequests, res.Failures)
			for class, n := range res.StatusCounts {
				fmt.Printf("  %s=%d\n", class, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.SessionID, "session-id", "", "target session id")
	cmd.Flags().StringVar(&cfg.Code, "code", "", "QR code value; random bogus codes when empty")
	cmd.Flags().StringSliceVar(&tokensFlag, "token", nil, "bearer tokens to rotate through")
	cmd.Flags().IntVar(&cfg.Students, "students", 30, "simulated student count")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 20, "requests per second")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "run duration")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "worker count")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "random seed")
	return cmd
}
