package load

import (
	"os"
	"time"

	"vehicleops-load/internal/telemetry"
)

// ResultRow is the outcome of one invocation.
type ResultRow struct {
	RunID       string           `json:"run_id"`
	VirtualUser int              `json:"vu"`
	Iteration   int              `json:"iteration"`
	GlobalIndex int              `json:"global_index"`
	Record      telemetry.Record `json:"record"`
	Status      int              `json:"status"`
	DurationMS  float64          `json:"duration_ms"`
	CheckPassed bool             `json:"check_passed"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"ts"`
}

// ResultsTableName holds the table name used when writing to GreptimeDB.
// It defaults to "load_results" but can be overridden via the
// RESULTS_TABLE environment variable.
var ResultsTableName = func() string {
	if env := os.Getenv("RESULTS_TABLE"); env != "" {
		return env
	}
	return "load_results"
}()

func (ResultRow) TableName() string {
	return ResultsTableName
}

// ResultWriter is an interface to support different result sinks.
type ResultWriter interface {
	Write(ResultRow) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteBatch([]ResultRow) error
}

// writeRows uses batch mode when the writer supports it.
func writeRows(w ResultWriter, rows []ResultRow) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
