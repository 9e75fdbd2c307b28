// Package watcher watches the source tree and pushes index update
// notifications on an observable stream.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"cci/internal/logging"
)

// UpdateKind discriminates stream events.
type UpdateKind int

const (
	// FileUpdated means a document was (re)indexed.
	FileUpdated UpdateKind = iota
	// FileRemoved means a document was purged.
	FileRemoved
	// IndexError means reindexing a file failed. Never dropped.
	IndexError
)

// String returns a string representation of the update kind
func (k UpdateKind) String() string {
	switch k {
	case FileUpdated:
		return "updated"
	case FileRemoved:
		return "removed"
	case IndexError:
		return "error"
	default:
		return "unknown"
	}
}

// Update is one event on the stream, emitted strictly in the order changes
// became durable.
type Update struct {
	Kind    UpdateKind
	Path    string
	Message string
}

// Handler applies one coalesced file change to the index. removed is true
// for deletions. A non-nil error becomes an IndexError event.
type Handler func(path string, removed bool) error

// Config contains watcher configuration
type Config struct {
	// DebounceMs coalesces rapid changes per file. Minimum 50.
	DebounceMs int `json:"debounceMs" mapstructure:"debounce_ms"`

	// IgnorePatterns are doublestar globs excluded from watching.
	IgnorePatterns []string `json:"ignorePatterns" mapstructure:"ignore_patterns"`

	// QueueCapacity bounds the update stream. When full, older events of
	// the same path coalesce to the newest.
	QueueCapacity int `json:"queueCapacity" mapstructure:"queue_capacity"`
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		DebounceMs: 100,
		IgnorePatterns: []string{
			".git/**",
			".dart_tool/**",
			"build/**",
			"node_modules/**",
			".*_context/**",
		},
		QueueCapacity: 256,
	}
}

// Watcher watches one source tree for file changes.
type Watcher struct {
	root    string
	config  Config
	logger  *logging.Logger
	handler Handler

	fs         *fsnotify.Watcher
	debouncers map[string]*Debouncer
	lastHash   map[string]uint64

	queue   []Update
	queueMu sync.Mutex
	wake    chan struct{}
	updates chan Update

	done chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// New creates a watcher over root. Events are delivered to handler one file
// at a time, FIFO, after debouncing.
func New(root string, config Config, logger *logging.Logger, handler Handler) (*Watcher, error) {
	if config.DebounceMs < 50 {
		config.DebounceMs = 50
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = 256
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:       root,
		config:     config,
		logger:     logger,
		handler:    handler,
		fs:         fs,
		debouncers: make(map[string]*Debouncer),
		lastHash:   make(map[string]uint64),
		wake:       make(chan struct{}, 1),
		updates:    make(chan Update),
		done:       make(chan struct{}),
	}, nil
}

// Updates is the observable event stream.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Start begins watching the tree recursively.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.wg.Add(2)
	go w.loop()
	go w.pump()
	w.logger.Info("watching for changes", map[string]interface{}{
		"root": w.root, "debounceMs": w.config.DebounceMs,
	})
	return nil
}

// Stop shuts the watcher down and closes the update stream.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fs.Close()
	w.mu.Lock()
	for _, d := range w.debouncers {
		d.Cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
	close(w.updates)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return false
	}
	for _, pattern := range w.config.IgnorePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// Dot-prefixed context dirs match their bare name too.
		if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0

	w.mu.Lock()
	d, ok := w.debouncers[rel]
	if !ok {
		d = NewDebouncer(time.Duration(w.config.DebounceMs) * time.Millisecond)
		w.debouncers[rel] = d
	}
	w.mu.Unlock()

	d.Trigger(func() {
		w.process(rel, removed)
	})
}

// process applies one coalesced change. Changes to a single file serialize
// through its debouncer; the handler call makes the change durable before
// its event is queued, so stream order matches durability order.
func (w *Watcher) process(rel string, removed bool) {
	if !removed {
		// Skip no-op writes via a cheap content hash.
		if data, err := os.ReadFile(filepath.Join(w.root, rel)); err == nil {
			sum := xxhash.Sum64(data)
			w.mu.Lock()
			prev, seen := w.lastHash[rel]
			w.lastHash[rel] = sum
			w.mu.Unlock()
			if seen && prev == sum {
				return
			}
		}
	} else {
		w.mu.Lock()
		delete(w.lastHash, rel)
		w.mu.Unlock()
	}

	if err := w.handler(rel, removed); err != nil {
		w.enqueue(Update{Kind: IndexError, Path: rel, Message: err.Error()})
		return
	}
	kind := FileUpdated
	if removed {
		kind = FileRemoved
	}
	w.enqueue(Update{Kind: kind, Path: rel})
}

// enqueue adds an event to the bounded stream queue. When full, the oldest
// event for the same path coalesces to the newest; IndexError events are
// never dropped.
func (w *Watcher) enqueue(u Update) {
	w.queueMu.Lock()
	if len(w.queue) >= w.config.QueueCapacity && u.Kind != IndexError {
		for i, old := range w.queue {
			if old.Path == u.Path && old.Kind != IndexError {
				w.queue = append(w.queue[:i], w.queue[i+1:]...)
				break
			}
		}
	}
	w.queue = append(w.queue, u)
	w.queueMu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) pump() {
	defer w.wg.Done()
	for {
		w.queueMu.Lock()
		if len(w.queue) > 0 {
			u := w.queue[0]
			w.queue = w.queue[1:]
			w.queueMu.Unlock()
			select {
			case w.updates <- u:
			case <-w.done:
				return
			}
			continue
		}
		w.queueMu.Unlock()
		select {
		case <-w.wake:
		case <-w.done:
			return
		}
	}
}
