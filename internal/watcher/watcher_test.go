package watcher

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cci/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func TestUpdateKindString(t *testing.T) {
	tests := []struct {
		kind UpdateKind
		want string
	}{
		{FileUpdated, "updated"},
		{FileRemoved, "removed"},
		{IndexError, "error"},
		{UpdateKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.DebounceMs < 50 {
		t.Errorf("DebounceMs = %d, want >= 50", config.DebounceMs)
	}
	if len(config.IgnorePatterns) == 0 {
		t.Error("IgnorePatterns should not be empty")
	}
	if config.QueueCapacity <= 0 {
		t.Errorf("QueueCapacity = %d, want positive", config.QueueCapacity)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		d.Trigger(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("debounced function ran %d times, want 1", count)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	ran := false
	d.Trigger(func() { ran = true })
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if ran {
		t.Error("cancelled debouncer still fired")
	}
}

func TestWatcherEmitsUpdates(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var handled []string
	w, err := New(root, Config{DebounceMs: 50, QueueCapacity: 16}, quietLogger(), func(path string, removed bool) error {
		mu.Lock()
		handled = append(handled, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "a.dart"), []byte("class A {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case u := <-w.Updates():
		if u.Kind != FileUpdated || u.Path != "a.dart" {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no update received")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != "a.dart" {
		t.Errorf("handler calls = %v", handled)
	}
}

func TestWatcherEmitsIndexError(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, Config{DebounceMs: 50, QueueCapacity: 16}, quietLogger(), func(path string, removed bool) error {
		return errors.New("producer exploded")
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "b.dart"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case u := <-w.Updates():
		if u.Kind != IndexError || u.Message == "" {
			t.Errorf("update = %+v, want IndexError", u)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no update received")
	}
}

func TestWatcherSkipsIdenticalContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "c.dart")
	if err := os.WriteFile(path, []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := 0
	w, err := New(root, Config{DebounceMs: 50, QueueCapacity: 16}, quietLogger(), func(string, bool) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// First write indexes; an identical rewrite later must not.
	if err := os.WriteFile(path, []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	<-w.Updates()
	if err := os.WriteFile(path, []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1 (identical rewrite skipped)", calls)
	}
}

func TestEnqueueCoalescesWhenFull(t *testing.T) {
	w := &Watcher{
		config: Config{QueueCapacity: 2},
		wake:   make(chan struct{}, 1),
	}
	w.enqueue(Update{Kind: FileUpdated, Path: "a"})
	w.enqueue(Update{Kind: FileUpdated, Path: "b"})
	// Queue full: a newer event for "a" replaces the old one.
	w.enqueue(Update{Kind: FileUpdated, Path: "a"})

	if len(w.queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(w.queue))
	}
	if w.queue[0].Path != "b" || w.queue[1].Path != "a" {
		t.Errorf("queue = %+v", w.queue)
	}

	// IndexError events are never dropped.
	w.enqueue(Update{Kind: IndexError, Path: "c", Message: "boom"})
	if len(w.queue) != 3 {
		t.Errorf("IndexError was dropped, queue = %+v", w.queue)
	}
}
