package load

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vehicleops-load/internal/logging"
	"vehicleops-load/internal/telemetry"
)

// InvokerConfig holds the per-run values every invocation needs.
type InvokerConfig struct {
	RunID   string
	URL     string
	Shape   telemetry.RunConfig
	Sleep   time.Duration
	Headers map[string]string
}

// Invoker runs the generate-send-log-check cycle for one iteration.
type Invoker struct {
	cfg       InvokerConfig
	transport Transport
	checks    CheckReporter
	writer    ResultWriter
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewInvoker creates an invoker. writer may be nil.
func NewInvoker(cfg InvokerConfig, transport Transport, checks CheckReporter, writer ResultWriter) *Invoker {
	return &Invoker{
		cfg:       cfg,
		transport: transport,
		checks:    checks,
		writer:    writer,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Invoke builds the record for it, sends it and pauses for the configured delay.
// A transport error ends the invocation early and is returned.
func (inv *Invoker) Invoke(ctx context.Context, gen *telemetry.Generator, it telemetry.IterationContext) (ResultRow, error) {
	idx := telemetry.GlobalIndex(it, inv.cfg.Shape)
	rec := gen.BuildRecord(idx, inv.cfg.Shape)

	row, err := inv.Deliver(ctx, it, idx, rec)
	if err != nil {
		return row, err
	}
	// cancellation during the pause is not an invocation failure
	_ = inv.sleep(ctx, inv.cfg.Sleep)
	return row, nil
}

// Deliver sends an already built record, logs the response, reports the
// status check and emits a result row.
func (inv *Invoker) Deliver(ctx context.Context, it telemetry.IterationContext, idx int, rec telemetry.Record) (ResultRow, error) {
	log := logging.FromContext(ctx)
	row := ResultRow{
		RunID:       inv.cfg.RunID,
		VirtualUser: it.VirtualUser,
		Iteration:   it.Iteration,
		GlobalIndex: idx,
		Record:      rec,
		Timestamp:   inv.now().UTC(),
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return row, fmt.Errorf("encode record: %w", err)
	}

	resp, err := inv.transport.Post(ctx, inv.cfg.URL, body, inv.cfg.Headers)
	if err != nil {
		if ctx.Err() != nil {
			return row, ctx.Err()
		}
		row.Error = err.Error()
		inv.write(ctx, row)
		return row, err
	}
	row.Status = resp.Status
	row.DurationMS = float64(resp.Duration) / float64(time.Millisecond)

	fields := []any{
		"type", rec.Type,
		"globalIndex", idx,
		"status", resp.Status,
		"duration", resp.Duration,
	}
	log.Info("event sent", fields...)
	if resp.Status != http.StatusOK {
		log.Error("event rejected", fields...)
	}

	row.CheckPassed = resp.Status == http.StatusOK
	if inv.checks != nil {
		inv.checks.Check(CheckStatus200, row.CheckPassed)
	}
	inv.write(ctx, row)
	return row, nil
}

func (inv *Invoker) write(ctx context.Context, row ResultRow) {
	if inv.writer == nil {
		return
	}
	if err := inv.writer.Write(row); err != nil {
		logging.FromContext(ctx).Error("result write failed", "globalIndex", row.GlobalIndex, "err", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
