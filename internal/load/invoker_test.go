package load

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"vehicleops-load/internal/telemetry"
)

func newTestInvoker(tr Transport, checks CheckReporter, w ResultWriter) *Invoker {
	inv := NewInvoker(InvokerConfig{
		RunID:   "run-1",
		URL:     "http://target/prod/event-notification",
		Shape:   telemetry.RunConfig{VirtualUsers: 10, Iterations: 1000},
		Sleep:   100 * time.Millisecond,
		Headers: map[string]string{"X-Api-Key": "k"},
	}, tr, checks, w)
	inv.now = func() time.Time { return time.Unix(0, 0) }
	return inv
}

func TestInvokeSendsRecord(t *testing.T) {
	tr := &fakeTransport{status: 200}
	checks := NewChecks()
	cw := &collectWriter{}
	inv := newTestInvoker(tr, checks, cw)
	var slept time.Duration
	inv.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	buf := &safeBuffer{}
	row, err := inv.Invoke(logContext(buf), telemetry.NewSeededGenerator(1), telemetry.IterationContext{VirtualUser: 10, Iteration: 99})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if row.GlobalIndex != 999 || row.Record.Type != telemetry.TypeEmergency {
		t.Errorf("unexpected row: %+v", row)
	}
	if !row.CheckPassed || row.Status != 200 {
		t.Errorf("expected passing check, got %+v", row)
	}
	if slept != 100*time.Millisecond {
		t.Errorf("expected 100ms pause, got %v", slept)
	}
	if tr.urls[0] != "http://target/prod/event-notification" {
		t.Errorf("unexpected url %s", tr.urls[0])
	}
	if tr.headers[0]["X-Api-Key"] != "k" {
		t.Errorf("configured header not forwarded: %+v", tr.headers[0])
	}

	var sent map[string]any
	if err := json.Unmarshal(tr.bodies[0], &sent); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	for _, key := range []string{"type", "vehicle_plate", "coordinates", "status"} {
		if _, ok := sent[key]; !ok {
			t.Errorf("payload missing %q: %s", key, tr.bodies[0])
		}
	}

	got := checks.Snapshot()
	if len(got) != 1 || got[0].Name != CheckStatus200 || got[0].Passes != 1 || got[0].Fails != 0 {
		t.Errorf("unexpected checks: %+v", got)
	}
	if len(cw.snapshot()) != 1 {
		t.Errorf("expected one result row, got %d", len(cw.snapshot()))
	}

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Errorf("expected a single log line, got %q", out)
	}
	for _, field := range []string{`"type":"Emergency"`, `"globalIndex":999`, `"status":200`, `"duration"`} {
		if !strings.Contains(out, field) {
			t.Errorf("log line missing %s: %s", field, out)
		}
	}
}

func TestInvokeNon200LogsErrorAndFailsCheck(t *testing.T) {
	tr := &fakeTransport{status: 500}
	checks := NewChecks()
	inv := newTestInvoker(tr, checks, nil)
	inv.sleep = func(context.Context, time.Duration) error { return nil }

	buf := &safeBuffer{}
	row, err := inv.Invoke(logContext(buf), telemetry.NewGenerator(nil), telemetry.IterationContext{VirtualUser: 1, Iteration: 0})
	if err != nil {
		t.Fatalf("non-200 must not surface as error: %v", err)
	}
	if row.CheckPassed {
		t.Errorf("expected failed check")
	}
	got := checks.Snapshot()
	if len(got) != 1 || got[0].Fails != 1 || got[0].Passes != 0 {
		t.Errorf("unexpected checks: %+v", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected info and error lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], `"level":"ERROR"`) || !strings.Contains(lines[1], `"status":500`) {
		t.Errorf("second line is not the error record: %s", lines[1])
	}
}

func TestInvokeTransportError(t *testing.T) {
	tr := &fakeTransport{err: errors.New("connection refused")}
	checks := NewChecks()
	cw := &collectWriter{}
	inv := newTestInvoker(tr, checks, cw)
	slept := false
	inv.sleep = func(context.Context, time.Duration) error {
		slept = true
		return nil
	}

	_, err := inv.Invoke(context.Background(), telemetry.NewGenerator(nil), telemetry.IterationContext{VirtualUser: 1, Iteration: 0})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if slept {
		t.Errorf("aborted invocation should not pause")
	}
	if len(checks.Snapshot()) != 0 {
		t.Errorf("no check should be reported without a response")
	}
	rows := cw.snapshot()
	if len(rows) != 1 || rows[0].Error == "" {
		t.Errorf("expected error row, got %+v", rows)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("sleep ignored cancellation")
	}
}
