package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrReauthRequired = errors.New("reauthorization required")

type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

type RunStatus string

const (
	RunStatusCompleted          RunStatus = "completed"
	RunStatusCompletedWithSkips RunStatus = "completed with skipped files"
	RunStatusFailed             RunStatus = "failed"
)

// RunPhase is the coarse state of a run.
type RunPhase string

const (
	PhaseIdle       RunPhase = "idle"
	PhaseEnsureRoot RunPhase = "ensure-root"
	PhaseWalk       RunPhase = "walk"
	PhaseComplete   RunPhase = "complete"
	PhaseFailed     RunPhase = "failed"
)

type fileOutcome string

const (
	outcomeUnchanged    fileOutcome = "unchanged"
	outcomeUploaded     fileOutcome = "uploaded"
	outcomeUpdated      fileOutcome = "updated"
	outcomeDownloaded   fileOutcome = "downloaded"
	outcomeRefreshed    fileOutcome = "refreshed"
	outcomeConflictCopy fileOutcome = "conflict-copy"
	outcomeSkipped      fileOutcome = "skipped"
)

type RunStats struct {
	Total          int `json:"total"`
	Processed      int `json:"processed"`
	Unchanged      int `json:"unchanged"`
	Uploaded       int `json:"uploaded"`
	Updated        int `json:"updated"`
	Downloaded     int `json:"downloaded"`
	Refreshed      int `json:"refreshed"`
	ConflictCopies int `json:"conflictCopies"`
	Skipped        int `json:"skipped"`
}

// SkippedPath is a file or folder the run gave up on.
type SkippedPath struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunResult describes a finished run.
type RunResult struct {
	ID             string        `json:"id"`
	Direction      Direction     `json:"direction"`
	Status         RunStatus     `json:"status"`
	Message        string        `json:"message"`
	ReauthRequired bool          `json:"reauthRequired"`
	Stats          RunStats      `json:"stats"`
	Skipped        []SkippedPath `json:"skipped,omitempty"`
	ConflictCopies []string      `json:"conflictCopies,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
}

func newRunResult(dir Direction, now time.Time) *RunResult {
	return &RunResult{
		ID:        uuid.NewString(),
		Direction: dir,
		StartedAt: now,
	}
}

func (r *RunResult) record(relPath string, outcome fileOutcome, err error) {
	r.Stats.Processed++
	switch outcome {
	case outcomeUnchanged:
		r.Stats.Unchanged++
	case outcomeUploaded:
		r.Stats.Uploaded++
	case outcomeUpdated:
		r.Stats.Updated++
	case outcomeDownloaded:
		r.Stats.Downloaded++
	case outcomeRefreshed:
		r.Stats.Refreshed++
	case outcomeConflictCopy:
		r.Stats.ConflictCopies++
		r.ConflictCopies = append(r.ConflictCopies, relPath)
	case outcomeSkipped:
		r.skip(relPath, err)
	}
}

func (r *RunResult) skip(relPath string, err error) {
	r.Stats.Skipped++
	reason := "skipped"
	if err != nil {
		reason = err.Error()
	}
	r.Skipped = append(r.Skipped, SkippedPath{Path: relPath, Reason: reason})
}

// finish settles the status from the stats.
func (r *RunResult) finish(now time.Time) {
	r.FinishedAt = now
	if r.Stats.Skipped > 0 || r.Stats.ConflictCopies > 0 {
		r.Status = RunStatusCompletedWithSkips
		r.Message = fmt.Sprintf("%s completed: %d of %d files need attention (%d skipped, %d conflict copies)",
			r.Direction, r.Stats.Skipped+r.Stats.ConflictCopies, r.Stats.Processed, r.Stats.Skipped, r.Stats.ConflictCopies)
		return
	}
	r.Status = RunStatusCompleted
	r.Message = fmt.Sprintf("%s completed: %d files checked, %d transferred", r.Direction, r.Stats.Processed, r.transferred())
}

func (r *RunResult) fail(now time.Time, err error) {
	r.FinishedAt = now
	r.Status = RunStatusFailed
	r.Message = err.Error()
	r.ReauthRequired = errors.Is(err, ErrReauthRequired)
}

func (r *RunResult) transferred() int {
	return r.Stats.Uploaded + r.Stats.Updated + r.Stats.Downloaded
}
