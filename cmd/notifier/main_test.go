package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"sitewatch/internal/orchestrator"
	"sitewatch/internal/types"
)

type fakeRunner struct {
	calls []orchestrator.RunOptions
	err   error
}

func (f *fakeRunner) Run(_ context.Context, opts orchestrator.RunOptions) (*types.RunSummary, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	start := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)
	return &types.RunSummary{
		ID:                "run_abc",
		DebugMode:         opts.DebugMode,
		StartedAt:         start,
		FinishedAt:        start.Add(1500 * time.Millisecond),
		TotalTargets:      3,
		Succeeded:         2,
		Failed:            1,
		NotificationsSent: 5,
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleDefaults(t *testing.T) {
	runner := &fakeRunner{}
	h := &Handler{Runner: runner, DefaultDebug: true, Logger: quietLogger()}

	resp, err := h.Handle(context.Background(), Event{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(runner.calls) != 1 || !runner.calls[0].DebugMode {
		t.Fatalf("expected one debug run, got %+v", runner.calls)
	}
	if !runner.calls[0].ReferenceTime.IsZero() {
		t.Errorf("ReferenceTime = %v, want zero", runner.calls[0].ReferenceTime)
	}
	want := Response{RunID: "run_abc", DebugMode: true, TotalTargets: 3, Succeeded: 2, Failed: 1, NotificationsSent: 5, DurationMS: 1500}
	if resp != want {
		t.Errorf("Handle = %+v, want %+v", resp, want)
	}
}

func TestHandleEventOverrides(t *testing.T) {
	runner := &fakeRunner{}
	h := &Handler{Runner: runner, DefaultDebug: true}

	off := false
	ref := time.Date(2026, 3, 1, 6, 0, 0, 0, time.FixedZone("MST", -7*3600))
	if _, err := h.Handle(context.Background(), Event{DebugMode: &off, ReferenceTime: &ref}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := runner.calls[0]
	if got.DebugMode {
		t.Error("event debug_mode=false must override the default")
	}
	if !got.ReferenceTime.Equal(ref) || got.ReferenceTime.Location() != time.UTC {
		t.Errorf("ReferenceTime = %v, want %v in UTC", got.ReferenceTime, ref)
	}
}

func TestHandleRunError(t *testing.T) {
	h := &Handler{Runner: &fakeRunner{err: errors.New("list users: connection refused")}, Logger: quietLogger()}

	if _, err := h.Handle(context.Background(), Event{}); err == nil {
		t.Fatal("expected enumeration failure to be returned")
	}
}

func TestHandleIgnoresScheduledEventFields(t *testing.T) {
	raw := `{"version":"0","detail-type":"Scheduled Event","source":"aws.events","time":"2026-01-15T06:00:00Z","detail":{}}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.DebugMode != nil || ev.ReferenceTime != nil {
		t.Errorf("scheduled event decoded to %+v, want empty", ev)
	}
}

func TestRunLocal(t *testing.T) {
	runner := &fakeRunner{}
	h := &Handler{Runner: runner, Logger: quietLogger()}

	var out bytes.Buffer
	if err := runLocal(context.Background(), h, strings.NewReader(`{"debug_mode":true}`), &out); err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if !runner.calls[0].DebugMode {
		t.Error("expected debug run from stdin event")
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if resp.RunID != "run_abc" {
		t.Errorf("run_id = %q, want run_abc", resp.RunID)
	}
}

func TestRunLocalEmptyInput(t *testing.T) {
	runner := &fakeRunner{}
	h := &Handler{Runner: runner, Logger: quietLogger()}

	if err := runLocal(context.Background(), h, strings.NewReader(""), io.Discard); err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0].DebugMode {
		t.Errorf("expected one production run, got %+v", runner.calls)
	}
}

func TestRunLocalBadInput(t *testing.T) {
	runner := &fakeRunner{}
	h := &Handler{Runner: runner, Logger: quietLogger()}

	if err := runLocal(context.Background(), h, strings.NewReader("{nope"), io.Discard); err == nil {
		t.Fatal("expected parse error")
	}
	if len(runner.calls) != 0 {
		t.Error("runner must not be called on bad input")
	}
}

func TestRunDaemonInvalidSchedule(t *testing.T) {
	h := &Handler{Runner: &fakeRunner{}, Logger: quietLogger()}

	err := runDaemon(context.Background(), h, "every morning", time.UTC, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "NOTIFIER_CRON") {
		t.Fatalf("runDaemon error = %v, want invalid NOTIFIER_CRON", err)
	}
}

func TestRunDaemonStopsOnCancel(t *testing.T) {
	h := &Handler{Runner: &fakeRunner{}, Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, h, "0 6 * * *", time.UTC, quietLogger()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runDaemon: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not stop after cancel")
	}
}

func TestCronLoggerError(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	l.Error(errors.New("boom"), "panic", "job", "run")

	if !strings.Contains(buf.String(), `"error":"boom"`) || !strings.Contains(buf.String(), "cron: panic") {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}
