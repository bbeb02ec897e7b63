package sync

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/openmined/syncmirror/internal/utils"
)

const DefaultMetadataFileName = ".sync_metadata.json"

// SyncRecord is the last agreed state of one file between the local tree and
// the remote store. LastSyncHash is always the digest of bytes that were
// actually transferred or verified equal.
type SyncRecord struct {
	RemoteID     *string `json:"driveId"`
	LastSyncHash *string `json:"lastSyncHash"`
	LastSyncTime int64   `json:"lastSyncTime"` // epoch ms
	Version      int64   `json:"version"`
}

func (r *SyncRecord) remoteID() string {
	if r == nil || r.RemoteID == nil {
		return ""
	}
	return *r.RemoteID
}

func (r *SyncRecord) version() int64 {
	if r == nil {
		return 0
	}
	return r.Version
}

func newSyncRecord(remoteID, hash string, syncTime, version int64) *SyncRecord {
	return &SyncRecord{
		RemoteID:     &remoteID,
		LastSyncHash: &hash,
		LastSyncTime: syncTime,
		Version:      version,
	}
}

// SyncMetadata is the content of the metadata side-file.
type SyncMetadata struct {
	Files    map[string]*SyncRecord `json:"files"`
	LastSync int64                  `json:"lastSync"` // epoch ms
}

func NewSyncMetadata() *SyncMetadata {
	return &SyncMetadata{Files: make(map[string]*SyncRecord)}
}

// MetadataStore persists SyncMetadata as a JSON side-file. Every Save is a
// full rewrite through a temp file and rename.
type MetadataStore struct {
	path string
	meta *SyncMetadata
}

func NewMetadataStore(path string) *MetadataStore {
	return &MetadataStore{path: path, meta: NewSyncMetadata()}
}

func (m *MetadataStore) Path() string {
	return m.path
}

// Load reads the side-file. A missing or unreadable file yields empty
// metadata, which makes every local file look never synced.
func (m *MetadataStore) Load() *SyncMetadata {
	m.meta = m.read()
	return m.meta
}

func (m *MetadataStore) read() *SyncMetadata {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSyncMetadata()
	} else if err != nil {
		slog.Warn("metadata read failed, starting without history", "path", m.path, "error", err)
		return NewSyncMetadata()
	}

	var meta SyncMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		slog.Warn("metadata corrupt, starting without history", "path", m.path, "error", err)
		return NewSyncMetadata()
	}

	if meta.Files == nil {
		meta.Files = make(map[string]*SyncRecord)
	}
	for path, rec := range meta.Files {
		if rec == nil {
			delete(meta.Files, path)
		}
	}
	return &meta
}

// Metadata returns the in-memory metadata of the last Load or Save.
func (m *MetadataStore) Metadata() *SyncMetadata {
	return m.meta
}

func (m *MetadataStore) Get(path string) (*SyncRecord, bool) {
	rec, ok := m.meta.Files[path]
	return rec, ok
}

func (m *MetadataStore) Set(path string, rec *SyncRecord) {
	m.meta.Files[path] = rec
}

// Commit sets the record and saves the whole side-file.
func (m *MetadataStore) Commit(path string, rec *SyncRecord) error {
	m.Set(path, rec)
	return m.Save(m.meta)
}

func (m *MetadataStore) Save(meta *SyncMetadata) error {
	if meta.Files == nil {
		meta.Files = make(map[string]*SyncRecord)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := utils.AtomicWrite(m.path, bytes.NewReader(data), 0o644); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	m.meta = meta
	return nil
}
