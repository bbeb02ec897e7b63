package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

const DefaultRemoteRoot = ".db"

// EngineConfig wires a SyncEngine. Only LocalDir and Store are required.
type EngineConfig struct {
	LocalDir     string
	RemoteRoot   string
	MetadataPath string
	MachineID    string
	IgnoreFile   string

	Store       remote.Store
	Credentials remote.CredentialSupplier
	Progress    ProgressReporter
	Hasher      ContentHasher

	FolderRetry   *RetryPolicy
	TransferRetry *RetryPolicy
	RootLookup    *RootLookupPolicy

	Now func() time.Time
}

// SyncEngine mirrors a local folder against a remote store, one run at a
// time, in either direction.
type SyncEngine struct {
	localDir    string
	remoteRoot  string
	machineID   string
	credentials remote.CredentialSupplier
	reporter    ProgressReporter
	hasher      ContentHasher
	now         func() time.Time

	metadata *MetadataStore
	mirror   *RemoteMirror
	detector *ChangeDetector
	resolver *ConflictResolver
	transfer *TransferExecutor
	ignore   *SyncIgnoreList
	lock     *runLock

	muPhase sync.RWMutex
	phase   RunPhase
}

func NewSyncEngine(cfg *EngineConfig) (*SyncEngine, error) {
	if cfg.LocalDir == "" {
		return nil, errors.New("local dir is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("remote store is required")
	}

	localDir, err := filepath.Abs(cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("local dir: %w", err)
	}

	remoteRoot := cfg.RemoteRoot
	if remoteRoot == "" {
		remoteRoot = DefaultRemoteRoot
	}
	if err := remote.ValidateName(remoteRoot); err != nil {
		return nil, fmt.Errorf("remote root: %w", err)
	}

	metadataPath := cfg.MetadataPath
	if metadataPath == "" {
		metadataPath = filepath.Join(localDir, DefaultMetadataFileName)
	}

	machineID := cfg.MachineID
	if machineID == "" {
		machineID = MachineID()
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = MD5Hasher{}
	}

	reporter := cfg.Progress
	if reporter == nil {
		reporter = nopReporter{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	folderRetry := FolderRetryPolicy
	if cfg.FolderRetry != nil {
		folderRetry = *cfg.FolderRetry
	}
	transferRetry := TransferRetryPolicy
	if cfg.TransferRetry != nil {
		transferRetry = *cfg.TransferRetry
	}
	rootLookup := RootLookupRetryPolicy
	if cfg.RootLookup != nil {
		rootLookup = *cfg.RootLookup
	}

	ignoreFile := cfg.IgnoreFile
	if ignoreFile == "" {
		ignoreFile = filepath.Join(localDir, DefaultIgnoreFileName)
	}

	transfer := NewTransferExecutor(cfg.Store, transferRetry, machineID)

	return &SyncEngine{
		localDir:    localDir,
		remoteRoot:  remoteRoot,
		machineID:   machineID,
		credentials: cfg.Credentials,
		reporter:    reporter,
		hasher:      hasher,
		now:         now,
		metadata:    NewMetadataStore(metadataPath),
		mirror:      NewRemoteMirror(cfg.Store, folderRetry, rootLookup),
		detector:    NewChangeDetector(hasher),
		resolver:    NewConflictResolver(transfer, hasher),
		transfer:    transfer,
		ignore:      NewSyncIgnoreList(ignoreFile, filepath.Base(metadataPath)),
		lock:        newRunLock(filepath.Join(filepath.Dir(metadataPath), LockFileName)),
		phase:       PhaseIdle,
	}, nil
}

func (se *SyncEngine) LocalDir() string {
	return se.localDir
}

func (se *SyncEngine) MachineID() string {
	return se.machineID
}

func (se *SyncEngine) Metadata() *MetadataStore {
	return se.metadata
}

// Phase returns the phase of the current run, or PhaseIdle.
func (se *SyncEngine) Phase() RunPhase {
	se.muPhase.RLock()
	defer se.muPhase.RUnlock()
	return se.phase
}

func (se *SyncEngine) setPhase(logger *slog.Logger, phase RunPhase) {
	se.muPhase.Lock()
	prev := se.phase
	se.phase = phase
	se.muPhase.Unlock()
	logger.Debug("phase", "from", prev, "to", phase)
}

// Push uploads local changes.
func (se *SyncEngine) Push(ctx context.Context) (*RunResult, error) {
	return se.Run(ctx, DirectionPush)
}

// Pull downloads remote changes.
func (se *SyncEngine) Pull(ctx context.Context) (*RunResult, error) {
	return se.Run(ctx, DirectionPull)
}

// Run performs one run. The result is never nil; the error is set exactly
// when the result status is RunStatusFailed.
func (se *SyncEngine) Run(ctx context.Context, dir Direction) (*RunResult, error) {
	result := newRunResult(dir, se.now())

	progress := newRunProgress(se.reporter, 0, 100)
	var plan *runPlan
	switch dir {
	case DirectionPush:
		plan = se.pushPlan(progress)
	case DirectionPull:
		plan = se.pullPlan(progress)
	default:
		err := fmt.Errorf("unknown direction %q", dir)
		result.fail(se.now(), err)
		return result, err
	}

	if dir == DirectionPush && !utils.DirExists(se.localDir) {
		err := fmt.Errorf("local folder %s does not exist", se.localDir)
		result.fail(se.now(), err)
		return result, err
	}

	if err := se.lock.acquire(); err != nil {
		result.fail(se.now(), err)
		return result, err
	}
	defer se.lock.release()

	logger := slog.With("run", result.ID, "direction", dir)

	start := time.Now()
	err := se.run(ctx, logger, plan, progress, result)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) && !errors.Is(err, ErrReauthRequired) {
			err = fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		se.setPhase(logger, PhaseFailed)
		result.fail(se.now(), err)
		progress.note("Sync failed: " + err.Error())
		logger.Error("run failed", "error", err, "took", time.Since(start))
		se.setPhase(logger, PhaseIdle)
		return result, err
	}

	se.setPhase(logger, PhaseComplete)
	result.finish(se.now())
	progress.at(plan.doneMessage, 100)
	logger.Info("run finished",
		"status", result.Status,
		"processed", result.Stats.Processed,
		"transferred", result.transferred(),
		"skipped", result.Stats.Skipped,
		"conflicts", result.Stats.ConflictCopies,
		"took", time.Since(start),
	)
	se.setPhase(logger, PhaseIdle)
	return result, nil
}

func (se *SyncEngine) run(ctx context.Context, logger *slog.Logger, plan *runPlan, progress *runProgress, result *RunResult) error {
	startedAt := se.now().UnixMilli()
	meta := se.metadata.Load()
	se.ignore.Load()
	logger.Info("run started", "local", se.localDir, "remote", se.remoteRoot, "known files", len(meta.Files))

	progress.at(plan.startMessage, 10)

	if se.credentials != nil {
		if err := se.credentials.EnsureValid(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
	}

	se.setPhase(logger, PhaseEnsureRoot)
	root, err := plan.ensureRoot(ctx, progress)
	if err != nil {
		return err
	}

	se.setPhase(logger, PhaseWalk)
	total, err := plan.source.countFiles(ctx, root)
	if err != nil {
		return fmt.Errorf("enumerate files: %w", err)
	}
	progress.total = total
	result.Stats.Total = total
	progress.at(plan.foundMessage(total), progress.lo)

	walker := &treeWalker{
		source:   plan.source,
		sink:     plan.sink,
		ignore:   se.ignore,
		progress: progress,
		result:   result,
		logger:   logger,
		label:    plan.label,
	}
	if err := walker.walk(ctx, root); err != nil {
		return err
	}

	meta = se.metadata.Metadata()
	meta.LastSync = startedAt
	if err := se.metadata.Save(meta); err != nil {
		logger.Warn("saving last sync time failed", "error", err)
	}
	return nil
}

// runPlan is what differs between push and pull.
type runPlan struct {
	startMessage string
	doneMessage  string
	foundMessage func(total int) string
	label        func(entry *treeEntry, n, total int) string
	ensureRoot   func(ctx context.Context, progress *runProgress) (*treeDir, error)
	source       treeSource
	sink         treeSink
}

// syncTime is the LastSyncTime recorded after writing to the remote: never
// earlier than the remote's own timestamp, so the write does not look like
// a foreign change on the next run.
func (se *SyncEngine) syncTime(node *remote.Node) int64 {
	t := se.now().UnixMilli()
	if node != nil && node.ModifiedTime.UnixMilli() > t {
		return node.ModifiedTime.UnixMilli()
	}
	return t
}
