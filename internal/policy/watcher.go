package policy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/strand-labs/strand/internal/config"
	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/retry"
	"github.com/strand-labs/strand/pkg/strand/v1/events"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
	"github.com/strand-labs/strand/pkg/strand/v1/mapproc"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
)

// Store holds the active compiled policy. Executions read the graph through
// an atomic pointer, so a reload swaps it in without pausing traffic:
// in-flight executions keep walking the graph they started on.
type Store struct {
	graph atomic.Pointer[Graph]
	set   atomic.Pointer[module.Set]
}

// NewStore creates a store seeded with the given graph and module set.
func NewStore(g *Graph, s *module.Set) *Store {
	st := &Store{}
	st.graph.Store(g)
	st.set.Store(s)
	return st
}

// Graph returns the currently active graph.
func (st *Store) Graph() *Graph { return st.graph.Load() }

// Set returns the module instances belonging to the active graph.
func (st *Store) Set() *module.Set { return st.set.Load() }

// Swap atomically replaces the active policy.
func (st *Store) Swap(g *Graph, s *module.Set) {
	st.set.Store(s)
	st.graph.Store(g)
}

// Watcher reloads a policy document file when it changes on disk. Events are
// debounced so editors that write in several steps trigger one reload, and a
// document that fails to load or compile leaves the active policy untouched.
type Watcher struct {
	path     string
	store    *Store
	modReg   plugin.Registry
	procReg  mapproc.Registry
	log      strandlog.Logger
	bus      events.Bus
	debounce time.Duration
	retrier  *retry.Helper
	copts    []CompileOption

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// defaultDebounceInterval is the quiet period after the last file event
// before a reload runs.
const defaultDebounceInterval = 100 * time.Millisecond

// NewWatcher creates a watcher for the given policy file. The registries are
// used to recompile on change; the bus receives a PolicyReloaded event per
// successful swap. Compile options are reapplied on every reload, so secret
// placeholders resolve against the same provider as the initial compile.
func NewWatcher(path string, store *Store, modReg plugin.Registry, procReg mapproc.Registry, log strandlog.Logger, bus events.Bus, compileOpts ...CompileOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	wlog := log.With("component", "PolicyWatcher")
	return &Watcher{
		path:     path,
		store:    store,
		modReg:   modReg,
		procReg:  procReg,
		log:      wlog,
		bus:      bus,
		debounce: defaultDebounceInterval,
		retrier:  retry.NewHelper(wlog),
		copts:    compileOpts,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing file events until the context is cancelled or Stop
// is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch path %q: %w", w.path, err)
	}
	w.log.Infof("Watching policy document '%s' (debounce %s)", w.path, w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.log.Debugf("Policy watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.log.Debugf("Policy watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.log.Debugf("Policy file event: %s %s", event.Op, event.Name)
			w.trigger()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite errors.
			w.log.Errorf("Policy watcher error: %v", err)
		}
	}
}

// Stop stops the watcher and waits for the Watch loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

// trigger resets the debounce timer; the reload runs after a quiet period.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.Reload)
}

// Reload recompiles the policy document and swaps it in. A document that
// fails to load leaves the active policy unchanged. Loading is retried a few
// times because a file event can fire while the document is half-written.
func (w *Watcher) Reload() {
	var doc *config.Document
	err := w.retrier.Do(context.Background(), retry.Config{
		Attempts:      3,
		Delay:         50 * time.Millisecond,
		BackoffFactor: 2.0,
		Name:          "policy reload",
	}, func(ctx context.Context) error {
		var loadErr error
		doc, loadErr = config.LoadDocumentFromFile(w.path)
		return loadErr
	})
	if err != nil {
		w.log.Errorf("Policy reload failed, keeping active policy: %v", err)
		return
	}
	g, set, err := Compile(doc, w.modReg, w.procReg, w.copts...)
	if err != nil {
		w.log.Errorf("Policy recompile failed, keeping active policy: %v", err)
		return
	}
	w.store.Swap(g, set)
	w.log.Infof("Policy document '%s' reloaded (%d nodes, %d sections)", w.path, g.NumNodes(), len(g.Sections()))
	if w.bus != nil {
		w.bus.Emit(events.Event{
			Type:       events.PolicyReloaded,
			Timestamp:  time.Now(),
			PolicyName: g.Name(),
		})
	}
}
