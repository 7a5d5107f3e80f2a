package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"omnipitr/cmd"
	"omnipitr/internal/config"
	"omnipitr/internal/logger"
	"omnipitr/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.New()
	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	log, err := buildLogger(level, cfg.LogTemplate)
	if err != nil {
		fmt.Fprintln(os.Stderr, "omnipitr: ", err)
		os.Exit(1)
	}
	collector := metrics.NewCollector(log)

	defer func() {
		s := collector.Summarize()
		if s.TotalOperations > 0 {
			fmt.Printf("\nSession summary: %d operations, %.1f%% success rate\n", s.TotalOperations, s.SuccessRate)
		}
	}()

	if err := cmd.Execute(ctx, cfg, log, collector); err != nil {
		log.Error("omnipitr failed", "error", err)
		os.Exit(1)
	}
}

// buildLogger sets up plain stdout logging unless a --log filename
// template is configured, in which case entries are also appended to
// that file.
func buildLogger(level, logTemplate string) (logger.Logger, error) {
	if logTemplate == "" {
		return logger.New(level, "text"), nil
	}
	return logger.FileLogger(level, "text", logTemplate)
}
