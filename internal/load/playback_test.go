package load

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vehicleops-load/internal/telemetry"
)

func TestReplayLog(t *testing.T) {
	rows := []ResultRow{sampleRow(0), sampleRow(1), sampleRow(2)}
	rows[2].Record.Type = telemetry.TypeEmergency
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	tr := &fakeTransport{status: 200}
	cw := &collectWriter{}
	inv := NewInvoker(InvokerConfig{RunID: "replay", URL: "http://target"}, tr, NewChecks(), cw)
	n, err := ReplayLog(context.Background(), &buf, inv, 0)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 3 || tr.calls() != 3 {
		t.Fatalf("expected 3 replayed rows, got n=%d calls=%d", n, tr.calls())
	}
	for i, body := range tr.bodies {
		var rec telemetry.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			t.Fatalf("decode body %d: %v", i, err)
		}
		if rec != rows[i].Record {
			t.Errorf("row %d mismatch: %+v vs %+v", i, rec, rows[i].Record)
		}
	}
	out := cw.snapshot()
	if len(out) != 3 || out[2].GlobalIndex != 2 || out[0].RunID != "replay" {
		t.Errorf("unexpected replay rows: %+v", out)
	}
}

func TestReplayLogPacing(t *testing.T) {
	a, b := sampleRow(0), sampleRow(1)
	b.Timestamp = a.Timestamp.Add(200 * time.Millisecond)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	_ = enc.Encode(a)
	_ = enc.Encode(b)

	inv := NewInvoker(InvokerConfig{URL: "http://target"}, &fakeTransport{status: 200}, nil, nil)
	start := time.Now()
	if _, err := ReplayLog(context.Background(), &buf, inv, 2); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected ~100ms pacing at speed 2, got %v", elapsed)
	}
}

func TestReplayLogFileMissing(t *testing.T) {
	inv := NewInvoker(InvokerConfig{}, &fakeTransport{status: 200}, nil, nil)
	if _, err := ReplayLogFile(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), inv, 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReplayLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	data, _ := json.Marshal(sampleRow(0))
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tr := &fakeTransport{status: 200}
	inv := NewInvoker(InvokerConfig{URL: "http://target"}, tr, nil, nil)
	n, err := ReplayLogFile(context.Background(), path, inv, 1)
	if err != nil || n != 1 {
		t.Fatalf("ReplayLogFile: n=%d err=%v", n, err)
	}
}
