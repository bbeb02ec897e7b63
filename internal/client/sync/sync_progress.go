package sync

import (
	"sync"
)

const progressEventBufferSize = 16

// ProgressEvent is one progress update of a run. Progress is 0..100.
type ProgressEvent struct {
	Message  string `json:"message"`
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Progress int    `json:"progress"`
	Complete bool   `json:"complete"`
}

type ProgressReporter interface {
	ReportProgress(ev ProgressEvent)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ev ProgressEvent)

func (f ProgressFunc) ReportProgress(ev ProgressEvent) {
	f(ev)
}

type nopReporter struct{}

func (nopReporter) ReportProgress(ProgressEvent) {}

// ProgressBroadcaster fans progress out to subscribers. Slow subscribers
// miss events rather than blocking the run.
type ProgressBroadcaster struct {
	mu          sync.RWMutex
	last        ProgressEvent
	subscribers map[chan ProgressEvent]struct{}
}

func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{subscribers: make(map[chan ProgressEvent]struct{})}
}

func (b *ProgressBroadcaster) ReportProgress(ev ProgressEvent) {
	b.mu.Lock()
	b.last = ev
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *ProgressBroadcaster) Subscribe() <-chan ProgressEvent {
	ch := make(chan ProgressEvent, progressEventBufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *ProgressBroadcaster) Unsubscribe(ch <-chan ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		if sub == ch {
			delete(b.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Last returns the most recent event.
func (b *ProgressBroadcaster) Last() ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// runProgress maps processed/total onto a sub-range of 0..100 for one run.
type runProgress struct {
	reporter  ProgressReporter
	lo, hi    int
	total     int
	processed int
	percent   int
}

func newRunProgress(reporter ProgressReporter, lo, hi int) *runProgress {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &runProgress{reporter: reporter, lo: lo, hi: hi}
}

// at reports a fixed percentage.
func (p *runProgress) at(message string, percent int) {
	p.percent = percent
	p.emit(message, percent >= 100)
}

// note reports a message without moving the bar.
func (p *runProgress) note(message string) {
	p.emit(message, false)
}

// step counts one processed file and reports message.
func (p *runProgress) step(message string) {
	p.processed++
	p.percent = p.scaled()
	p.emit(message, false)
}

func (p *runProgress) scaled() int {
	if p.total <= 0 {
		return p.hi
	}
	done := p.processed
	if done > p.total {
		done = p.total
	}
	return p.lo + (p.hi-p.lo)*done/p.total
}

func (p *runProgress) emit(message string, complete bool) {
	p.reporter.ReportProgress(ProgressEvent{
		Message:  message,
		Current:  p.percent,
		Total:    100,
		Progress: p.percent,
		Complete: complete,
	})
}
