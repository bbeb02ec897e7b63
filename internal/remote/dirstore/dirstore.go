// Package dirstore is a remote.Store kept on the local disk: an SQLite index
// of the node tree plus one blob file per remote file. The dev server serves
// it over HTTP and the CLI can point at it directly for a same-machine mirror.
package dirstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/syncmirror/internal/db"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/utils"
)

const (
	indexFileName = "index.db"
	blobDirName   = "blobs"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	modified_at INTEGER NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, seq);
`

// dbNode is a row of the nodes table. Times are unix milliseconds.
type dbNode struct {
	ID         string `db:"id"`
	ParentID   string `db:"parent_id"`
	Name       string `db:"name"`
	Kind       string `db:"kind"`
	Size       int64  `db:"size"`
	ModifiedAt int64  `db:"modified_at"`
	Properties string `db:"properties"`
	Seq        int64  `db:"seq"`
}

func (n *dbNode) toNode() *remote.Node {
	node := &remote.Node{
		ID:           n.ID,
		Name:         n.Name,
		Kind:         remote.NodeKind(n.Kind),
		ModifiedTime: time.UnixMilli(n.ModifiedAt),
		Size:         n.Size,
	}
	if n.Properties != "" && n.Properties != "{}" {
		if err := json.Unmarshal([]byte(n.Properties), &node.Properties); err != nil {
			slog.Warn("dirstore bad properties", "id", n.ID, "error", err)
		}
	}
	return node
}

// Store implements remote.Store under a root directory.
type Store struct {
	root string
	db   *sqlx.DB
	now  func() time.Time
}

// Open creates or opens a store rooted at dir.
func Open(dir string) (*Store, error) {
	root, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(filepath.Join(root, blobDirName)); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	conn, err := db.NewSqliteDb(
		db.WithPath(filepath.Join(root, indexFileName)),
		db.WithMaxOpenConns(1),
		db.WithSchema(schemaSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	slog.Debug("dirstore open", "root", root)
	return &Store{root: root, db: conn, now: time.Now}, nil
}

// SetClock overrides the time source used for modification times.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*remote.Node, error) {
	if err := s.checkFolder(ctx, parentID); err != nil {
		return nil, err
	}

	var rows []dbNode
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM nodes WHERE parent_id = ? ORDER BY seq`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", parentID, err)
	}

	nodes := make([]*remote.Node, 0, len(rows))
	for i := range rows {
		nodes = append(nodes, rows[i].toNode())
	}
	return nodes, nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (*remote.Node, error) {
	if err := remote.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.checkFolder(ctx, parentID); err != nil {
		return nil, err
	}

	row := &dbNode{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Name:       name,
		Kind:       string(remote.KindFolder),
		ModifiedAt: s.now().UnixMilli(),
		Properties: "{}",
	}
	if err := s.insert(ctx, row); err != nil {
		return nil, err
	}
	return row.toNode(), nil
}

func (s *Store) CreateFile(ctx context.Context, params *remote.CreateFileParams) (*remote.Node, error) {
	if err := remote.ValidateName(params.Name); err != nil {
		return nil, err
	}
	if err := s.checkFolder(ctx, params.ParentID); err != nil {
		return nil, err
	}

	props, err := json.Marshal(params.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	if params.Properties == nil {
		props = []byte("{}")
	}

	id := uuid.NewString()
	size, err := s.writeBlob(id, params.Content)
	if err != nil {
		return nil, err
	}

	row := &dbNode{
		ID:         id,
		ParentID:   params.ParentID,
		Name:       params.Name,
		Kind:       string(remote.KindFile),
		Size:       size,
		ModifiedAt: s.now().UnixMilli(),
		Properties: string(props),
	}
	if err := s.insert(ctx, row); err != nil {
		os.Remove(s.blobPath(id))
		return nil, err
	}
	slog.Debug("dirstore file created", "id", id, "name", params.Name, "size", size)
	return row.toNode(), nil
}

func (s *Store) UpdateFile(ctx context.Context, id string, content io.Reader, size int64) (*remote.Node, error) {
	row, err := s.file(ctx, id)
	if err != nil {
		return nil, err
	}

	written, err := s.writeBlob(id, content)
	if err != nil {
		return nil, err
	}

	row.Size = written
	row.ModifiedAt = s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`UPDATE nodes SET size = ?, modified_at = ? WHERE id = ?`,
		row.Size, row.ModifiedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update %q: %w", id, err)
	}
	return row.toNode(), nil
}

func (s *Store) GetFileMetadata(ctx context.Context, id string) (*remote.Node, error) {
	row, err := s.file(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.toNode(), nil
}

func (s *Store) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := s.file(ctx, id); err != nil {
		return nil, err
	}
	f, err := os.Open(s.blobPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %q", remote.ErrNotFound, id)
	} else if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a node and everything below it.
func (s *Store) Delete(ctx context.Context, id string) error {
	row, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if row.Kind == string(remote.KindFolder) {
		var children []string
		if err := s.db.SelectContext(ctx, &children, `SELECT id FROM nodes WHERE parent_id = ?`, id); err != nil {
			return err
		}
		for _, child := range children {
			if err := s.Delete(ctx, child); err != nil {
				return err
			}
		}
	} else {
		if err := os.Remove(s.blobPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	return err
}

func (s *Store) insert(ctx context.Context, row *dbNode) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO nodes (id, parent_id, name, kind, size, modified_at, properties, seq)
		VALUES (:id, :parent_id, :name, :kind, :size, :modified_at, :properties,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM nodes))`, row)
	if err != nil {
		return fmt.Errorf("insert %q: %w", row.Name, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, id string) (*dbNode, error) {
	var row dbNode
	err := s.db.GetContext(ctx, &row, `SELECT * FROM nodes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", remote.ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return &row, nil
}

func (s *Store) file(ctx context.Context, id string) (*dbNode, error) {
	row, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Kind != string(remote.KindFile) {
		return nil, fmt.Errorf("%w: %q is a folder", remote.ErrNotFound, id)
	}
	return row, nil
}

func (s *Store) checkFolder(ctx context.Context, id string) error {
	if id == remote.RootID {
		return nil
	}
	row, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if row.Kind != string(remote.KindFolder) {
		return fmt.Errorf("%w: %q is not a folder", remote.ErrNotFound, id)
	}
	return nil
}

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.root, blobDirName, id[:2], id)
}

func (s *Store) writeBlob(id string, content io.Reader) (int64, error) {
	if content == nil {
		content = bytes.NewReader(nil)
	}
	counter := &countingReader{r: content}
	if err := utils.AtomicWrite(s.blobPath(id), counter, 0o644); err != nil {
		return 0, fmt.Errorf("write blob %q: %w", id, err)
	}
	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ remote.Store = (*Store)(nil)
