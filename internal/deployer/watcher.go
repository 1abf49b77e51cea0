package deployer

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
)

// Watcher reloads a definition directory when its files change. Bursts of
// events within the debounce window cause a single reload.
type Watcher struct {
	deployer *Deployer
	dir      string
	debounce time.Duration
	logger   logging.Logger
	onReload func(*LoadResult, error)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// OnReload registers a callback invoked after every reload
func OnReload(fn func(*LoadResult, error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher creates a watcher for dir. It does nothing until Start.
func NewWatcher(deployer *Deployer, dir string, debounce time.Duration, logger logging.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{
		deployer: deployer,
		dir:      dir,
		debounce: debounce,
		logger:   logger.WithFields(logging.Field{Key: "component", Value: "watcher"}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the directory
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.InternalError("failed to create file watcher", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return errors.ConfigError("failed to watch api definitions directory").
			WithCause(err).
			WithContext("dir", w.dir)
	}
	w.watcher = watcher

	go w.loop()

	w.logger.Info("Watching API definitions",
		logging.String("dir", w.dir),
		logging.Duration("debounce", w.debounce),
	)
	return nil
}

// Close stops watching and waits for a pending reload to finish
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.doneCh
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
		timerC = timer.C
	}

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", logging.Err(err))
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if shouldReload(evt) {
				resetTimer()
			}
		}
	}
}

func (w *Watcher) reload() {
	result, err := w.deployer.Reload(w.dir)
	if err != nil {
		w.logger.Error("Reload of API definitions failed", err, logging.String("dir", w.dir))
	}
	if w.onReload != nil {
		w.onReload(result, err)
	}
}

func shouldReload(evt fsnotify.Event) bool {
	if strings.TrimSpace(evt.Name) == "" {
		return false
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return IsDefinitionFile(evt.Name)
}
