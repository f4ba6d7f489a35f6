package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/term"

	"vehicleops-load/internal/config"
	"vehicleops-load/internal/load"
)

const (
	outputJSON = "json"
	outputTUI  = "tui"
	outputNone = "none"
)

// resultSinks bundles the writer handed to the runner with whatever must be
// closed once the run returns.
type resultSinks struct {
	writer  load.ResultWriter
	tui     *load.TUIWriter
	closers []io.Closer
}

// Close flushes and closes every sink, joining errors.
func (s *resultSinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isTerminal is swapped in tests.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// newResultWriter sets up result sinks from the output mode, an optional
// results file and GREPTIMEDB_* env vars.
func newResultWriter(cfg *config.LoadTestConfig, output, resultsFile string) (*resultSinks, error) {
	sinks := &resultSinks{}
	var ws []load.ResultWriter

	switch output {
	case "", outputJSON:
		ws = append(ws, load.NewJSONStdoutWriter())
	case outputTUI:
		if isTerminal() {
			tw := load.NewTUIWriter(cfg)
			sinks.tui = tw
			sinks.closers = append(sinks.closers, tw)
			ws = append(ws, tw)
		} else {
			ws = append(ws, load.NewJSONStdoutWriter())
		}
	case outputNone:
	default:
		return nil, fmt.Errorf("unknown output %q (json, tui or none)", output)
	}

	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}
		batch := 0
		if v := os.Getenv("GREPTIMEDB_BATCH_SIZE"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				sinks.Close()
				return nil, fmt.Errorf("invalid GREPTIMEDB_BATCH_SIZE: %w", err)
			}
			batch = n
		}
		gw, err := load.NewGreptimeDBWriter(endpoint, database, load.ResultsTableName, batch)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("greptime writer: %w", err)
		}
		sinks.closers = append(sinks.closers, gw)
		ws = append(ws, gw)
	}

	if resultsFile != "" {
		fw, err := load.NewFileWriter(resultsFile)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks.closers = append(sinks.closers, fw)
		ws = append(ws, fw)
	}

	switch len(ws) {
	case 0:
	case 1:
		sinks.writer = ws[0]
	default:
		sinks.writer = load.NewMultiWriter(ws...)
	}
	return sinks, nil
}
