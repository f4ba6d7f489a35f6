package load

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

const (
	defaultGreptimePort      = 4001
	defaultGreptimeBatchSize = 100
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter buffers result rows and writes them to GreptimeDB in batches.
type GreptimeDBWriter struct {
	client    greptimeClient
	table     string
	batchSize int

	mu      sync.Mutex
	buf     []ResultRow
	dropped int64
}

// NewGreptimeDBWriter connects to endpoint (host or host:port). GreptimeDB
// creates the table on first insert.
func NewGreptimeDBWriter(endpoint, database, tableName string, batchSize int) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = ResultsTableName
	}
	if batchSize <= 0 {
		batchSize = defaultGreptimeBatchSize
	}
	return &GreptimeDBWriter{client: client, table: tableName, batchSize: batchSize}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptime port %q: %w", portStr, err)
	}
	return host, port, nil
}

// Write buffers a single row and flushes once the batch is full.
func (w *GreptimeDBWriter) Write(row ResultRow) error {
	return w.WriteBatch([]ResultRow{row})
}

// WriteBatch buffers rows and flushes once the batch is full.
func (w *GreptimeDBWriter) WriteBatch(rows []ResultRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, rows...)
	if len(w.buf) < w.batchSize {
		return nil
	}
	return w.flushLocked()
}

// Flush writes any buffered rows.
func (w *GreptimeDBWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Dropped returns how many rows were discarded after failed writes.
func (w *GreptimeDBWriter) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close flushes remaining rows.
func (w *GreptimeDBWriter) Close() error {
	return w.Flush()
}

func (w *GreptimeDBWriter) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	tbl, err := w.buildTable(w.buf)
	if err != nil {
		w.dropped += int64(len(w.buf))
		w.buf = w.buf[:0]
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		log.Printf("[GreptimeDBWriter] Write failed, dropping %d rows: %v", len(w.buf), err)
		w.dropped += int64(len(w.buf))
		w.buf = w.buf[:0]
		return err
	}
	log.Printf("[GreptimeDBWriter] wrote %d rows", len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

func (w *GreptimeDBWriter) buildTable(rows []ResultRow) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		kind types.ColumnType
		tag  bool
	}{
		{"run_id", types.STRING, true},
		{"type", types.STRING, true},
		{"vu", types.INT64, false},
		{"iteration", types.INT64, false},
		{"global_index", types.INT64, false},
		{"vehicle_plate", types.STRING, false},
		{"latitude", types.STRING, false},
		{"longitude", types.STRING, false},
		{"status", types.INT64, false},
		{"duration_ms", types.FLOAT64, false},
		{"check_passed", types.BOOLEAN, false},
		{"error", types.STRING, false},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.kind)
		} else {
			err = tbl.AddFieldColumn(c.name, c.kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	for _, r := range rows {
		err := tbl.AddRow(
			r.RunID,
			string(r.Record.Type),
			int64(r.VirtualUser),
			int64(r.Iteration),
			int64(r.GlobalIndex),
			r.Record.VehiclePlate,
			r.Record.Coordinates.Latitude,
			r.Record.Coordinates.Longitude,
			int64(r.Status),
			r.DurationMS,
			r.CheckPassed,
			r.Error,
			r.Timestamp,
		)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
