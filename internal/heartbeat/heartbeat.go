// Package heartbeat lets CLI commands tell whether a forge gateway is up and
// which tasks it is executing.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

// DefaultInterval is how often a Writer refreshes the file.
const DefaultInterval = 30 * time.Second

// Status represents the liveness state of the gateway.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Heartbeat is the content of the heartbeat file.
type Heartbeat struct {
	PID          int       `json:"pid"`
	Addr         string    `json:"addr,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Timestamp    time.Time `json:"timestamp"`
	Uptime       string    `json:"uptime"`
	RunningTasks []string  `json:"running_tasks"`
}

// RunningFunc reports the ids of the tasks currently executing.
type RunningFunc func() []string

// Writer periodically writes a heartbeat file.
type Writer struct {
	path     string
	addr     string
	interval time.Duration
	running  RunningFunc
	started  time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a writer for path. running may be nil.
func NewWriter(path, addr string, running RunningFunc) *Writer {
	return &Writer{
		path:     path,
		addr:     addr,
		interval: DefaultInterval,
		running:  running,
	}
}

// Start writes the file immediately, then every interval until Stop.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	w.started = time.Now()
	w.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.write()
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.write()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Touch rewrites the file now, e.g. after a task started or finished.
func (w *Writer) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.write()
	}
}

// Stop stops writing and removes the file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("remove heartbeat", "path", w.path, "error", err)
	}
}

func (w *Writer) write() {
	running := []string{}
	if w.running != nil {
		running = slices.Sorted(slices.Values(w.running()))
	}
	hb := Heartbeat{
		PID:          os.Getpid(),
		Addr:         w.addr,
		StartedAt:    w.started,
		Timestamp:    time.Now(),
		Uptime:       time.Since(w.started).Truncate(time.Second).String(),
		RunningTasks: running,
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Debug("write heartbeat", "path", w.path, "error", err)
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		slog.Debug("write heartbeat", "path", w.path, "error", err)
	}
}

// Check reads a heartbeat file. A missing file means dead; a file older than
// maxAge means stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}
	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}
