package load

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"vehicleops-load/internal/logging"
	"vehicleops-load/internal/telemetry"
)

// ReplayLog re-sends the records of a results log through inv. A speed >0
// scales the recorded gaps between rows; speed <= 0 sends back to back.
// It returns the number of rows replayed.
func ReplayLog(ctx context.Context, r io.Reader, inv *Invoker, speed float64) (int, error) {
	log := logging.FromContext(ctx)
	dec := json.NewDecoder(r)
	var prev time.Time
	sent := 0
	for {
		var row ResultRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return sent, nil
			}
			return sent, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if err := sleepContext(ctx, diff); err != nil {
				return sent, err
			}
		}
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		it := telemetry.IterationContext{VirtualUser: row.VirtualUser, Iteration: row.Iteration}
		if _, err := inv.Deliver(ctx, it, row.GlobalIndex, row.Record); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			log.Error("replay send failed", "globalIndex", row.GlobalIndex, "err", err)
		}
		sent++
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its rows.
func ReplayLogFile(ctx context.Context, path string, inv *Invoker, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, inv, speed)
}
