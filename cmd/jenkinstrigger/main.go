package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"jenkinstrigger/internal/config"
	"jenkinstrigger/internal/engine/jenkins"
	"jenkinstrigger/internal/logger"
	"jenkinstrigger/internal/output"
	"jenkinstrigger/internal/runner"
	"jenkinstrigger/internal/storage"
	"jenkinstrigger/internal/storage/models"
)

func main() {
	configPath := flag.String("config", "", "Optional path to a YAML configuration file; INPUT_* environment variables override it")
	history := flag.Int("history", 0, "Print the N most recent runs from the run history database and exit")
	flag.Parse()

	if *history > 0 {
		if err := printHistory(*configPath, *history); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print run history: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Error("Build trigger run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Audit.Path != "" {
		if err := storage.Init(cfg.Audit.Path); err != nil {
			return fmt.Errorf("failed to initialize run history database: %w", err)
		}
		defer storage.Close()
	}

	client, err := jenkins.NewClient(cfg.Jenkins)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	logger.Info("Successfully connected to Jenkins.", "version", client.Version())

	pub := output.NewPublisher(cfg.Outputs)

	started := time.Now()
	report, runErr := runner.New(cfg, client, pub).Run(ctx)
	recordRun(cfg, started, report, runErr)

	return runErr
}

// printHistory lists recent run-history rows, newest first
func printHistory(configPath string, limit int) error {
	dbPath, err := config.AuditPath(configPath)
	if err != nil {
		return err
	}
	if dbPath == "" {
		return fmt.Errorf("run history database not configured (INPUT_AUDIT_DB)")
	}

	if err := storage.Init(dbPath); err != nil {
		return err
	}
	defer storage.Close()

	runs, err := storage.GetRuns(limit, 0)
	if err != nil {
		return err
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-9s  %s", run.Timestamp.Format(time.RFC3339), run.Result, run.JobName)
		if run.BuildURL != "" {
			line += "  " + run.BuildURL
		}
		if run.Error != "" {
			line += "  (" + run.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// recordRun writes one run-history row when the audit database is enabled.
// Recording failures are logged, never fatal; the build outcome wins.
func recordRun(cfg *config.Config, started time.Time, report *runner.Report, runErr error) {
	if cfg.Audit.Path == "" {
		return
	}

	run := models.TriggerRun{
		Timestamp:  started,
		JobName:    cfg.Jenkins.JobName,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if params, err := json.Marshal(cfg.Jenkins.Parameters); err == nil {
		run.Params = string(params)
	}
	if report != nil {
		run.BuildURL = report.BuildURL
		run.Result = report.Result
	}
	if runErr != nil {
		run.Error = runErr.Error()
		if run.Result == "" {
			run.Result = "ERROR"
		}
	} else if run.Result == "" {
		// Triggered without waiting for the outcome
		run.Result = "TRIGGERED"
	}

	if err := storage.InsertRun(run); err != nil {
		logger.Warn("Failed to record run history", "error", err)
	}
}
