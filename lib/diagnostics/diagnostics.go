// Package diagnostics holds the debug artifact sink. scraping code never
// writes intermediate html to disk itself, it hands artifacts to a Sink
// and the process decides whether anything is persisted.
package diagnostics

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
)

// Sink receives named debug artifacts (raw html, formatted http exchanges).
type Sink interface {
	Write(id string, contents string)
}

var enabled atomic.Bool

// SetEnabled toggles artifact writing for the whole process.
func SetEnabled(on bool) {
	enabled.Store(on)
}

func Enabled() bool {
	return enabled.Load()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Write(string, string) {}

type gated struct {
	inner Sink
}

func (g gated) Write(id, contents string) {
	if !Enabled() {
		return
	}
	g.inner.Write(id, contents)
}

// Gate wraps a sink so it only writes while diagnostics are enabled.
// a nil sink becomes Nop.
func Gate(inner Sink) Sink {
	if inner == nil {
		return Nop{}
	}
	return gated{inner: inner}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitize(id string) string {
	return unsafeChars.ReplaceAllString(id, "_")
}

type FilesystemOutput struct {
	directory string
	seq       *atomic.Uint64
}

// NewFilesystemOutput writes every artifact as a file under dir, prefixed
// with a sequence number so the order of a run is preserved.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir, seq: &atomic.Uint64{}}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	n := o.seq.Add(1)
	name := fmt.Sprintf("%04d_%s", n, sanitize(id))
	err := os.WriteFile(filepath.Join(o.directory, name), []byte(contents), 0o600)
	if err != nil {
		slog.Warn("failed to write diagnostics artifact", "id", id, "err", err)
	}
}

// Memory keeps artifacts in memory, mostly useful for tests.
type Memory struct {
	mu        sync.Mutex
	artifacts map[string]string
	order     []string
}

func NewMemory() *Memory {
	return &Memory{artifacts: map[string]string{}}
}

func (m *Memory) Write(id string, contents string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[id]; !ok {
		m.order = append(m.order, id)
	}
	m.artifacts[id] = contents
}

func (m *Memory) Get(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.artifacts[id]
	return v, ok
}

func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
