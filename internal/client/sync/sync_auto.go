package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultStaleCheckInterval = 5 * time.Minute

// AutoSync pushes on start, after every change signal, and whenever the last
// sync has gone stale.
type AutoSync struct {
	engine        *SyncEngine
	changes       <-chan struct{}
	checkInterval time.Duration
	onResult      func(*RunResult, error)
}

func NewAutoSync(engine *SyncEngine, changes <-chan struct{}, checkInterval time.Duration) *AutoSync {
	if checkInterval <= 0 {
		checkInterval = DefaultStaleCheckInterval
	}
	return &AutoSync{engine: engine, changes: changes, checkInterval: checkInterval}
}

// OnResult registers a callback for every finished push.
func (a *AutoSync) OnResult(fn func(*RunResult, error)) {
	a.onResult = fn
}

// Run blocks until ctx is done or the credentials need the user.
func (a *AutoSync) Run(ctx context.Context) error {
	if err := a.push(ctx, "startup"); err != nil {
		return err
	}

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-a.changes:
			if !ok {
				return nil
			}
			if err := a.push(ctx, "local change"); err != nil {
				return err
			}
		case <-ticker.C:
			res, err := a.engine.CheckNeedsSync()
			if err != nil {
				slog.Warn("sync check failed", "error", err)
				continue
			}
			if !res.NeedsSync {
				continue
			}
			if err := a.push(ctx, res.Reason); err != nil {
				return err
			}
		}
	}
}

// push runs one push. Only a reauthorization error is returned; every other
// failure is left for the next trigger.
func (a *AutoSync) push(ctx context.Context, trigger string) error {
	slog.Info("auto sync", "trigger", trigger)
	result, err := a.engine.Push(ctx)
	if a.onResult != nil {
		a.onResult(result, err)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSyncAlreadyRunning):
		slog.Debug("auto sync skipped, run in progress")
	case errors.Is(err, ErrReauthRequired):
		return err
	case ctx.Err() != nil:
		return nil
	default:
		slog.Error("auto sync failed", "error", err)
	}
	return nil
}
