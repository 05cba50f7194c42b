// Package watch calls back once a Top image layer's file has gone
// quiet: a guest that stops issuing writes to its topmost layer (shut
// down, or simply idle) is a good moment to fold it into Base without
// competing with live I/O for the rate budget. Starting the commit is
// left to the callback.
package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/rjeczalik/notify"

	"imgcommit/internal/log"
)

// DefaultQuietPeriod is how long a layer file must go without a
// write event before Watcher fires its callback.
const DefaultQuietPeriod = 30 * time.Second

// Watcher observes a single layer file path and invokes a callback
// once it has been quiet for QuietPeriod.
type Watcher struct {
	path        string
	quietPeriod time.Duration
	onQuiet     func(path string)

	events chan notify.EventInfo
	quit   chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// New starts watching path for write activity. onQuiet is called
// (from the watcher's own goroutine) after quietPeriod elapses with
// no further write events; pass 0 to use DefaultQuietPeriod.
func New(path string, quietPeriod time.Duration, onQuiet func(path string)) (*Watcher, error) {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	w := &Watcher{
		path:        path,
		quietPeriod: quietPeriod,
		onQuiet:     onQuiet,
		events:      make(chan notify.EventInfo, 16),
		quit:        make(chan struct{}),
	}
	if err := notify.Watch(path, w.events, notify.Write, notify.Rename, notify.Remove); err != nil {
		return nil, fmt.Errorf("watch: register %s: %w", path, err)
	}
	w.resetTimer()
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops watching and releases the underlying OS resources.
func (w *Watcher) Close() {
	close(w.quit)
	notify.Stop(w.events)
	w.wg.Wait()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev := <-w.events:
			log.Trace("watch: activity", "path", w.path, "event", ev.Event())
			w.resetTimer()
		case <-w.quit:
			return
		}
	}
}

func (w *Watcher) resetTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.quietPeriod, func() {
		log.Debug("watch: layer quiesced", "path", w.path, "after", w.quietPeriod)
		w.onQuiet(w.path)
	})
}
