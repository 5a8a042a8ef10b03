package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"promptforge/internal/backend"
	"promptforge/internal/metrics"
	"promptforge/internal/refine"
)

var (
	improvePreset      string
	improvePrimaryURL  string
	improveFallbackURL string
	improveTimeout     time.Duration
	improveTemperature float64
	improveNoFallback  bool
	improveNoRepair    bool
	improveJSON        bool
)

var improveCmd = &cobra.Command{
	Use:   "improve [text]",
	Short: "Rewrite a rough prompt into a clear, self-contained one",
	Long: `Sends the given text (or stdin when no argument is supplied) to the
selected backend and prints the improved prompt together with any
clarifying questions and assumptions the model surfaced.

Examples:
  forge improve "summarize this doc"
  cat rough.txt | forge improve --preset structured
  forge improve --json --no-fallback "write release notes"`,
	RunE: runImprove,
}

func init() {
	improveCmd.Flags().StringVar(&improvePreset, "preset", "balanced", "output style: balanced, concise, or structured")
	improveCmd.Flags().StringVar(&improvePrimaryURL, "primary-url", "", "override the primary backend URL")
	improveCmd.Flags().StringVar(&improveFallbackURL, "fallback-url", "", "override the fallback backend URL")
	improveCmd.Flags().DurationVar(&improveTimeout, "timeout", 0, "override the per-call deadline for both backends")
	improveCmd.Flags().Float64Var(&improveTemperature, "temperature", -1, "override the sampling temperature")
	improveCmd.Flags().BoolVar(&improveNoFallback, "no-fallback", false, "never route to the cloud fallback")
	improveCmd.Flags().BoolVar(&improveNoRepair, "no-repair", false, "fail immediately instead of issuing a repair call")
	improveCmd.Flags().BoolVar(&improveJSON, "json", false, "emit the raw result object as JSON")
}

func runImprove(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return err
	}
	if len([]rune(input)) < cfg.Generation.MinInputLength {
		return fmt.Errorf("input must be at least %d characters", cfg.Generation.MinInputLength)
	}

	applyFlagOverrides()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.NewRegistry())
	client := backend.NewHTTPClient(logger)

	breaker := backend.NewBreaker(backend.BreakerConfig{
		Threshold: cfg.Breaker.FailureThreshold,
		Cooldown:  cfg.Breaker.CooldownOr(5 * time.Minute),
		OnTrip:    m.BreakerTripped,
	}, logger)

	selector := backend.NewSelector(backend.SelectorOptions{
		Primary: &backend.Backend{
			Endpoint: backend.Endpoint{
				Name:          "primary",
				URL:           cfg.Primary.URL,
				Model:         cfg.Primary.Model,
				APIKey:        cfg.Primary.APIKey,
				Deadline:      cfg.Primary.TimeoutOr(30 * time.Second),
				HealthTimeout: cfg.Primary.HealthTimeoutOr(30 * time.Second),
			},
			Client: client,
		},
		Fallback: &backend.Backend{
			Endpoint: backend.Endpoint{
				Name:     "fallback",
				URL:      cfg.Fallback.URL,
				Model:    cfg.Fallback.Model,
				APIKey:   cfg.Fallback.APIKey,
				Deadline: cfg.Fallback.TimeoutOr(120 * time.Second),
			},
			Client: client,
		},
		Prober:          client,
		FallbackEnabled: cfg.FallbackEnabled,
		Breaker:         breaker,
		Logger:          logger,
		Metrics:         m,
	})

	orch := refine.New(refine.Options{
		Selector:      selector,
		Temperature:   cfg.Generation.Temperature,
		RepairEnabled: cfg.RepairEnabled,
		Logger:        logger,
		Metrics:       m,
	})

	result, err := orch.Refine(ctx, input, refine.ParsePreset(improvePreset))
	if err != nil {
		return err
	}

	if improveJSON {
		return printJSON(result)
	}
	printHuman(result)
	if !result.OK() {
		return fmt.Errorf("refinement failed: %s", result.Reason)
	}
	return nil
}

// applyFlagOverrides folds the improve flags over the loaded config. Flags
// always win.
func applyFlagOverrides() {
	if improvePrimaryURL != "" {
		cfg.Primary.URL = improvePrimaryURL
	}
	if improveFallbackURL != "" {
		cfg.Fallback.URL = improveFallbackURL
	}
	if improveTimeout > 0 {
		cfg.Primary.Timeout = improveTimeout.String()
		cfg.Fallback.Timeout = improveTimeout.String()
	}
	if improveTemperature >= 0 {
		cfg.Generation.Temperature = improveTemperature
	}
	if improveNoFallback {
		cfg.FallbackEnabled = false
	}
	if improveNoRepair {
		cfg.RepairEnabled = false
	}
}

// readInput takes the prompt from the arguments, or from stdin when no
// argument was given.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printJSON(result *refine.Result) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printHuman(result *refine.Result) {
	if result.OK() {
		fmt.Println(result.Improved.FinalText)
		fmt.Println()

		if len(result.Improved.ClarifyingQuestions) > 0 {
			fmt.Println("Clarifying questions:")
			for _, q := range result.Improved.ClarifyingQuestions {
				fmt.Printf("  - %s\n", q)
			}
			fmt.Println()
		}
		if len(result.Improved.Assumptions) > 0 {
			fmt.Println("Assumptions:")
			for _, a := range result.Improved.Assumptions {
				fmt.Printf("  - %s\n", a)
			}
			fmt.Println()
		}
		fmt.Printf("Confidence: %.2f\n", result.Improved.Confidence)
	} else {
		fmt.Printf("Refinement failed (%s): %s\n", result.Reason, result.Message)
	}

	fmt.Println()
	fmt.Println(attemptTable(result))
}

func attemptTable(result *refine.Result) string {
	rows := make([][]string, 0, len(result.Attempts))
	for _, a := range result.Attempts {
		kind := "generate"
		if a.UsedRepair {
			kind = "repair"
		}
		method := "direct parse"
		if a.UsedExtraction {
			method = string(a.Method)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", a.Attempt),
			kind,
			string(result.Route),
			method,
			a.Elapsed.Round(time.Millisecond).String(),
		})
	}
	return renderTable(
		[]string{"#", "Call", "Backend", "Parsed via", "Elapsed"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
