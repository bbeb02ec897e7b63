package main

import (
	"io"
	"os"
	"sync"

	"github.com/openmined/syncmirror/internal/utils"
)

// logs is the file half of the default logger. It starts on the default log
// path and moves when the config names another one.
var logs = &logFile{}

type logFile struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func (l *logFile) Open(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.path = path
	l.file = file
	return nil
}

func (l *logFile) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *logFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

func (l *logFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var _ io.WriteCloser = (*logFile)(nil)
