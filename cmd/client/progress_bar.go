package main

import (
	"io"

	"github.com/cheggaaa/pb/v3"
	"github.com/openmined/syncmirror/internal/client/sync"
)

const progressTemplate = `{{ bar . "[" "=" ">" " " "]" }} {{ percent . }} {{ string . "message" }}`

// progressBar draws engine progress events on a terminal bar scaled 0..100.
// Events arrive from the single goroutine running the engine.
type progressBar struct {
	bar *pb.ProgressBar
}

func newProgressBar(w io.Writer, terminal bool) *progressBar {
	bar := pb.New(100).
		SetTemplateString(progressTemplate).
		SetWriter(w).
		SetMaxWidth(100).
		Set(pb.Terminal, terminal).
		Set(pb.Color, terminal)
	return &progressBar{bar: bar}
}

func (p *progressBar) ReportProgress(ev sync.ProgressEvent) {
	if !p.bar.IsStarted() {
		p.bar.Start()
	}
	p.bar.Set("message", ev.Message)
	p.bar.SetCurrent(int64(ev.Progress))
	if ev.Complete && !p.bar.IsFinished() {
		p.bar.Finish()
	}
}

// Stop finishes the bar if the run ended without a complete event.
func (p *progressBar) Stop() {
	if p.bar.IsStarted() && !p.bar.IsFinished() {
		p.bar.Finish()
	}
}

var _ sync.ProgressReporter = (*progressBar)(nil)
