package server

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chazu/liveobjects/image"
	"github.com/chazu/liveobjects/object"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads the registry when the image artifact is changed on disk by
// something other than the store itself, such as a hand edit of the prefix.
type Watcher struct {
	Debounce time.Duration

	store   *image.Store
	worker  *Worker
	metrics *Metrics
	startup bool
	path    string
	fsw     *fsnotify.Watcher
}

// NewWatcher watches the directory holding store's artifact. When startup is
// set, startup hooks run after each reload.
func NewWatcher(store *image.Store, worker *Worker, metrics *Metrics, startup bool) (*Watcher, error) {
	path, err := filepath.Abs(store.Path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		Debounce: DefaultDebounce,
		store:    store,
		worker:   worker,
		metrics:  metrics,
		startup:  startup,
		path:     path,
		fsw:      fsw,
	}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	log.Infof("watching %s", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debugf("image event: %s", event)
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warningf("watch %s: %v", w.path, err)

		case <-fire:
			fire = nil
			if _, err := w.Reload(); err != nil {
				log.Errorf("reload %s: %v", w.path, err)
			}
		}
	}
}

// Reload rehydrates the registry if the artifact differs from what the store
// last read or wrote. The artifact is loaded into a scratch registry first,
// so a broken edit leaves the live registry untouched.
func (w *Watcher) Reload() (bool, error) {
	changed, err := w.store.Changed()
	if err != nil || !changed {
		return false, err
	}

	if err := w.store.Hydrate(object.NewRegistry(object.WithOutput(io.Discard))); err != nil {
		w.metrics.rehydrations.WithLabelValues(result(err)).Inc()
		return false, err
	}

	_, err = w.worker.Do(func(reg *object.Registry) (any, error) {
		if err := w.store.Hydrate(reg); err != nil {
			return nil, err
		}
		if w.startup {
			reg.StartupAll()
		}
		w.metrics.objects.Set(float64(len(reg.Objects())))
		return nil, nil
	})
	w.metrics.rehydrations.WithLabelValues(result(err)).Inc()
	if err != nil {
		return false, err
	}
	log.Infof("reloaded %s", w.path)
	return true, nil
}
