package load

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"vehicleops-load/internal/logging"
)

// fakeTransport records payloads and answers with a fixed status.
type fakeTransport struct {
	mu      sync.Mutex
	status  int
	err     error
	urls    []string
	bodies  [][]byte
	headers []map[string]string
}

func (f *fakeTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.bodies = append(f.bodies, body)
	f.headers = append(f.headers, headers)
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Status: f.status, Duration: 3 * time.Millisecond}, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

// collectWriter keeps every row it is given.
type collectWriter struct {
	mu   sync.Mutex
	rows []ResultRow
}

func (c *collectWriter) Write(r ResultRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, r)
	return nil
}

func (c *collectWriter) snapshot() []ResultRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ResultRow, len(c.rows))
	copy(out, c.rows)
	return out
}

// safeBuffer is a bytes.Buffer usable from several goroutines.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func logContext(buf *safeBuffer) context.Context {
	l := slog.New(slog.NewJSONHandler(buf, nil))
	return logging.NewContext(context.Background(), l)
}
