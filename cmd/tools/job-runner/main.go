// Package main implements the job-runner CLI for invoking archiver
// maintenance tasks directly, bypassing the Lambda runtime.
//
// It is meant for local development, manual backfills and operational
// debugging.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=purge_notifications
//	go run ./cmd/tools/job-runner --task=purge_runs --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=purge_dry_runs
//	go run ./cmd/tools/job-runner --list
//
// Configuration is read the same way as every other binary, including a
// .env file. In --dry-run mode the payload is printed and nothing runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"sitewatch/internal/app"
	"sitewatch/internal/config"
	"sitewatch/internal/scheduler"
)

// executeFunc runs a payload; replaced in tests.
type executeFunc func(ctx context.Context, p scheduler.MaintenancePayload) (scheduler.Result, error)

var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, executeWithConfig); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, execute executeFunc) error {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	taskFlag := fs.String("task", "", "Task type to execute (e.g., purge_notifications)")
	refTimeFlag := fs.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := fs.Bool("list", false, "List all available task types and exit")
	dryRunFlag := fs.Bool("dry-run", false, "Print the JSON payload without executing")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(stderr, "Invoke archiver maintenance tasks directly, bypassing Lambda.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nUse --list to see all available task types.\n")
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *listFlag {
		printAvailableTasks(stdout)
		return nil
	}

	if *taskFlag == "" {
		fmt.Fprintf(stderr, "error: --task is required\n\n")
		fs.Usage()
		return errUsage
	}
	task := scheduler.TaskType(*taskFlag)
	if _, ok := scheduler.TaskDescriptions[task]; !ok {
		fmt.Fprintf(stderr, "error: unknown task type %q\n\n", *taskFlag)
		printAvailableTasks(stderr)
		return errUsage
	}

	payload := scheduler.MaintenancePayload{Task: task}
	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			return fmt.Errorf("invalid --reference-time %q (expected RFC3339): %w", *refTimeFlag, err)
		}
		payload.ReferenceTime = &t
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if *dryRunFlag {
		return enc.Encode(payload)
	}

	result, err := execute(ctx, payload)
	if err != nil {
		return err
	}
	return enc.Encode(result)
}

func executeWithConfig(ctx context.Context, p scheduler.MaintenancePayload) (scheduler.Result, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("loading configuration: %w", err)
	}
	logger := config.NewLogger(cfg.LogLevel).With("service", "sitewatch-job-runner")

	a, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return scheduler.Result{}, err
	}
	defer a.Close()

	svc, err := a.NewMaintenance(cfg, logger)
	if err != nil {
		return scheduler.Result{}, err
	}
	return svc.Execute(ctx, p)
}

func printAvailableTasks(w io.Writer) {
	tasks := make([]string, 0, len(scheduler.TaskDescriptions))
	for t := range scheduler.TaskDescriptions {
		tasks = append(tasks, string(t))
	}
	sort.Strings(tasks)

	fmt.Fprintln(w, "Available tasks:")
	for _, t := range tasks {
		fmt.Fprintf(w, "  %-22s %s\n", t, scheduler.TaskDescriptions[scheduler.TaskType(t)])
	}
}
