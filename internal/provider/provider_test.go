package provider

import (
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePruner records which subscription ids were disabled.
type fakePruner struct {
	mu       sync.Mutex
	disabled []string
	err      error
}

func (f *fakePruner) DisableByID(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.disabled = append(f.disabled, id)
	return nil
}

func (f *fakePruner) disabledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disabled...)
}
