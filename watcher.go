package manager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DataDog/reload-manager/internal"
)

// WatcherOptions - Options of a change watcher
type WatcherOptions struct {
	// PollInterval - Delay between two polls of the artifact. Non-positive values default to 100ms.
	PollInterval time.Duration

	// StatRetry - Number of times a failed stat is retried within a poll before giving up until the next poll.
	// Defaults to 5.
	StatRetry uint

	// MaxBackoff - Upper bound of the delay between two stat retries. Non-positive values default to 2s.
	MaxBackoff time.Duration

	// ModTime - Returns the modification time of the artifact
	ModTime ModTimeFunc

	// Logger - Defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

func (o *WatcherOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.StatRetry == 0 {
		o.StatRetry = 5
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	if o.ModTime == nil {
		o.ModTime = internal.ModTime
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Watcher - Background poller of the modification time of one file
type Watcher struct {
	path     string
	baseline time.Time
	options  WatcherOptions
	signaled atomic.Bool
	done     chan struct{}
}

// StartWatcher - Polls path until its modification time is strictly after baseline, then calls signal once and
// stops. Stat failures are transient: they are retried, logged at debug level, and never reported. The watcher
// stops without signaling when ctx is done.
func StartWatcher(ctx context.Context, path string, baseline time.Time, signal func(), options WatcherOptions) *Watcher {
	options.setDefaults()
	w := &Watcher{
		path:     path,
		baseline: baseline,
		options:  options,
		done:     make(chan struct{}),
	}
	go w.watch(ctx, signal)
	return w
}

// Done - Closed once the watcher stopped
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Signaled - Returns true if the watcher called its signal function
func (w *Watcher) Signaled() bool {
	return w.signaled.Load()
}

func (w *Watcher) watch(ctx context.Context, signal func()) {
	defer close(w.done)
	ticker := time.NewTicker(w.options.PollInterval)
	defer ticker.Stop()

	for {
		if w.changed(ctx) && ctx.Err() == nil {
			w.signaled.Store(true)
			w.options.Logger.WithField("artifact", w.path).Info("artifact changed")
			signal()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// changed - Returns true if the artifact was modified after the baseline
func (w *Watcher) changed(ctx context.Context) bool {
	var modTime time.Time
	err := internal.Retry(ctx, func() error {
		var err error
		modTime, err = w.options.ModTime(w.path)
		return err
	}, w.options.StatRetry, w.options.PollInterval, w.options.MaxBackoff)
	if err != nil {
		w.options.Logger.WithError(err).WithField("artifact", w.path).Debug("transient stat failure")
		return false
	}
	return modTime.After(w.baseline)
}
