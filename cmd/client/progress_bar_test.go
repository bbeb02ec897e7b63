package main

import (
	"bytes"
	"testing"

	"github.com/openmined/syncmirror/internal/client/sync"
	"github.com/stretchr/testify/assert"
)

func TestProgressBar_FinishesOnComplete(t *testing.T) {
	var out bytes.Buffer
	bar := newProgressBar(&out, false)

	bar.ReportProgress(sync.ProgressEvent{Message: "Checking for changes...", Progress: 10})
	assert.True(t, bar.bar.IsStarted())
	assert.EqualValues(t, 10, bar.bar.Current())

	bar.ReportProgress(sync.ProgressEvent{Message: "Sync completed successfully!", Progress: 100, Complete: true})
	assert.True(t, bar.bar.IsFinished())
	assert.Contains(t, out.String(), "Sync completed successfully!")

	bar.Stop()
}

func TestProgressBar_StopWithoutEvents(t *testing.T) {
	bar := newProgressBar(&bytes.Buffer{}, false)
	bar.Stop()
	assert.False(t, bar.bar.IsStarted())
}
