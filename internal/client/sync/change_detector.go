package sync

import (
	"fmt"
	"os"
)

type Classification string

const (
	NeverSynced Classification = "never-synced"
	Unchanged   Classification = "unchanged"
	Modified    Classification = "modified"
)

// ChangeDetector compares local content with the last synced digest. It
// never talks to the remote store.
type ChangeDetector struct {
	hasher ContentHasher
}

func NewChangeDetector(hasher ContentHasher) *ChangeDetector {
	return &ChangeDetector{hasher: hasher}
}

// Classify reads localPath and classifies it against rec.
func (d *ChangeDetector) Classify(localPath string, rec *SyncRecord) (Classification, string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", localPath, err)
	}
	class, digest := d.ClassifyContent(data, rec)
	return class, digest, nil
}

// ClassifyContent classifies bytes already in memory. Callers that go on to
// upload use this so the recorded digest matches the uploaded bytes.
func (d *ChangeDetector) ClassifyContent(data []byte, rec *SyncRecord) (Classification, string) {
	digest := d.hasher.Hash(data)
	switch {
	case rec == nil:
		return NeverSynced, digest
	case rec.LastSyncHash != nil && *rec.LastSyncHash == digest:
		return Unchanged, digest
	default:
		return Modified, digest
	}
}
