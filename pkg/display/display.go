// Package display periodically redraws a single status line in place
// on a terminal.
package display

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// A Displayer draws one frame of status onto w and reports whether
// the display should keep refreshing.
type Displayer interface {
	Display(w io.Writer) bool
}

type Display struct {
	live     *uilive.Writer
	interval time.Duration
	updater  Displayer
	buffer   *bytes.Buffer
	close    chan struct{}
	once     sync.Once
	done     sync.WaitGroup
}

func New(updater Displayer, interval time.Duration, w io.Writer) *Display {
	live := uilive.New()
	live.Out = w
	return &Display{
		live:     live,
		interval: interval,
		updater:  updater,
		buffer:   bytes.NewBuffer(nil),
		close:    make(chan struct{}),
	}
}

func (d *Display) update() bool {
	d.buffer.Reset()
	cont := d.updater.Display(d.buffer)
	// Ignore any errors.
	_, _ = io.Copy(d.live, d.buffer)
	_ = d.live.Flush()
	return cont
}

func (d *Display) Run() {
	d.done.Add(1)
	defer d.done.Done()
	for {
		if !d.update() {
			d.stop()
		}
		select {
		case <-d.close:
			return
		case <-time.After(d.interval):
		}
	}
}

// Bypass returns a writer that prints above the status line without
// disturbing it.
func (d *Display) Bypass() io.Writer {
	return d.live.Bypass()
}

// Close stops the refresh loop and draws one final frame so the last
// counts are what remains on screen.
func (d *Display) Close() {
	d.stop()
	d.done.Wait()
	d.update()
}

func (d *Display) stop() {
	d.once.Do(func() { close(d.close) })
}
