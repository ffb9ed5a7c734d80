package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"sitewatch/internal/scheduler"
)

func neverExecute(t *testing.T) executeFunc {
	return func(context.Context, scheduler.MaintenancePayload) (scheduler.Result, error) {
		t.Fatal("execute must not be called")
		return scheduler.Result{}, nil
	}
}

func TestRunList(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--list"}, &out, &bytes.Buffer{}, neverExecute(t)); err != nil {
		t.Fatalf("run: %v", err)
	}
	for task := range scheduler.TaskDescriptions {
		if !strings.Contains(out.String(), string(task)) {
			t.Errorf("list output missing %s", task)
		}
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing task", nil},
		{"unknown task", []string{"--task=cleanup_soft_deletes"}},
		{"bad flag", []string{"--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, &bytes.Buffer{}, &bytes.Buffer{}, neverExecute(t))
			if !errors.Is(err, errUsage) {
				t.Errorf("err = %v, want usage error", err)
			}
		})
	}

	err := run(context.Background(), []string{"--task=purge_runs", "--reference-time=yesterday"},
		&bytes.Buffer{}, &bytes.Buffer{}, neverExecute(t))
	if err == nil || errors.Is(err, errUsage) {
		t.Errorf("err = %v, want reference time parse error", err)
	}
}

func TestRunDryRunPrintsPayload(t *testing.T) {
	var out bytes.Buffer
	args := []string{"--dry-run", "--task=purge_dry_runs", "--reference-time=2026-01-15T02:00:00Z"}
	if err := run(context.Background(), args, &out, &bytes.Buffer{}, neverExecute(t)); err != nil {
		t.Fatalf("run: %v", err)
	}

	var p scheduler.MaintenancePayload
	if err := json.Unmarshal(out.Bytes(), &p); err != nil {
		t.Fatalf("output is not a payload: %v", err)
	}
	if p.Task != scheduler.TaskPurgeDryRuns || p.ReferenceTime == nil || p.ReferenceTime.Hour() != 2 {
		t.Errorf("payload = %+v", p)
	}
}

func TestRunExecutes(t *testing.T) {
	var got scheduler.MaintenancePayload
	execute := func(_ context.Context, p scheduler.MaintenancePayload) (scheduler.Result, error) {
		got = p
		return scheduler.Result{Task: p.Task, Deleted: 42}, nil
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"--task=purge_notifications"}, &out, &bytes.Buffer{}, execute); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Task != scheduler.TaskPurgeNotifications {
		t.Errorf("executed %q", got.Task)
	}
	if !strings.Contains(out.String(), `"deleted": 42`) {
		t.Errorf("output = %s", out.String())
	}
}

func TestRunExecuteError(t *testing.T) {
	execute := func(context.Context, scheduler.MaintenancePayload) (scheduler.Result, error) {
		return scheduler.Result{}, errors.New("connection refused")
	}
	err := run(context.Background(), []string{"--task=purge_runs"}, &bytes.Buffer{}, &bytes.Buffer{}, execute)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}
