// Package memstore is an in-memory remote.Store. It counts calls per
// operation and can be told to fail, which makes it the collaborator of
// choice in sync tests.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/syncmirror/internal/remote"
)

type Op string

const (
	OpList         Op = "list"
	OpCreateFolder Op = "create_folder"
	OpCreateFile   Op = "create_file"
	OpUpdateFile   Op = "update_file"
	OpGetMetadata  Op = "get_metadata"
	OpDownload     Op = "download"
)

type entry struct {
	node    remote.Node
	parent  string
	content []byte
	seq     int
}

type failure struct {
	remaining int
	err       error
}

var _ remote.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	nodes    map[string]*entry
	calls    map[Op]int
	failures map[Op]*failure
	now      func() time.Time
	seq      int
}

func New() *Store {
	return &Store{
		nodes:    make(map[string]*entry),
		calls:    make(map[Op]int),
		failures: make(map[Op]*failure),
		now:      time.Now,
	}
}

// SetClock overrides the time stamped on created and updated nodes.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next n calls of op return err.
func (s *Store) FailNext(op Op, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &failure{remaining: n, err: err}
}

// Calls returns how many times op was invoked, failed calls included.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[Op]int)
}

// begin records a call and returns the injected failure, if any.
// Must be called with s.mu held.
func (s *Store) begin(op Op) error {
	s.calls[op]++
	f, ok := s.failures[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	f.remaining--
	return f.err
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpList); err != nil {
		return nil, err
	}
	if err := s.checkFolder(parentID); err != nil {
		return nil, err
	}

	var children []*entry
	for _, e := range s.nodes {
		if e.parent == parentID {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].seq < children[j].seq })

	nodes := make([]*remote.Node, 0, len(children))
	for _, e := range children {
		nodes = append(nodes, e.snapshot())
	}
	return nodes, nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (*remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreateFolder); err != nil {
		return nil, err
	}
	if err := s.checkFolder(parentID); err != nil {
		return nil, err
	}
	e := s.insert(parentID, remote.Node{Name: name, Kind: remote.KindFolder}, nil)
	return e.snapshot(), nil
}

func (s *Store) CreateFile(ctx context.Context, params *remote.CreateFileParams) (*remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpCreateFile); err != nil {
		return nil, err
	}
	if err := s.checkFolder(params.ParentID); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(params.Content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	node := remote.Node{
		Name:       params.Name,
		Kind:       remote.KindFile,
		Properties: maps.Clone(params.Properties),
	}
	e := s.insert(params.ParentID, node, content)
	return e.snapshot(), nil
}

func (s *Store) UpdateFile(ctx context.Context, id string, content io.Reader, size int64) (*remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpUpdateFile); err != nil {
		return nil, err
	}
	e, err := s.file(id)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	e.content = data
	e.node.Size = int64(len(data))
	e.node.ModifiedTime = s.now().UTC()
	return e.snapshot(), nil
}

func (s *Store) GetFileMetadata(ctx context.Context, id string) (*remote.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGetMetadata); err != nil {
		return nil, err
	}
	e, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	return e.snapshot(), nil
}

func (s *Store) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpDownload); err != nil {
		return nil, err
	}
	e, err := s.file(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(e.content))), nil
}

// PutFile seeds a file without counting a call. It returns the new node.
func (s *Store) PutFile(parentID, name string, content []byte, modified time.Time) *remote.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.insert(parentID, remote.Node{Name: name, Kind: remote.KindFile}, bytes.Clone(content))
	e.node.ModifiedTime = modified.UTC()
	return e.snapshot()
}

// PutFolder seeds a folder without counting a call.
func (s *Store) PutFolder(parentID, name string) *remote.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(parentID, remote.Node{Name: name, Kind: remote.KindFolder}, nil).snapshot()
}

// SetContent simulates another machine editing a file.
func (s *Store) SetContent(id string, content []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.nodes[id]; ok {
		e.content = bytes.Clone(content)
		e.node.Size = int64(len(content))
		e.node.ModifiedTime = modified.UTC()
	}
}

// Delete removes a node and everything below it.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delete(id)
}

func (s *Store) delete(id string) {
	for childID, e := range s.nodes {
		if e.parent == id {
			s.delete(childID)
		}
	}
	delete(s.nodes, id)
}

// Lookup resolves a slash separated path of names from the root, returning
// the first match at each level.
func (s *Store) Lookup(path string) (*remote.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := remote.RootID
	var found *entry
	for _, name := range strings.Split(path, "/") {
		found = nil
		for _, e := range s.sorted() {
			if e.parent == parent && e.node.Name == name {
				found = e
				break
			}
		}
		if found == nil {
			return nil, false
		}
		parent = found.node.ID
	}
	return found.snapshot(), true
}

// Content returns the bytes of a file.
func (s *Store) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return bytes.Clone(e.content), true
}

// Children returns the names below parentID in creation order.
func (s *Store) Children(parentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, e := range s.sorted() {
		if e.parent == parentID {
			names = append(names, e.node.Name)
		}
	}
	return names
}

func (s *Store) sorted() []*entry {
	all := make([]*entry, 0, len(s.nodes))
	for _, e := range s.nodes {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	return all
}

func (s *Store) insert(parentID string, node remote.Node, content []byte) *entry {
	s.seq++
	node.ID = uuid.NewString()
	node.Size = int64(len(content))
	node.ModifiedTime = s.now().UTC()
	e := &entry{node: node, parent: parentID, content: content, seq: s.seq}
	s.nodes[node.ID] = e
	return e
}

func (s *Store) checkFolder(id string) error {
	if id == remote.RootID {
		return nil
	}
	e, ok := s.nodes[id]
	if !ok || !e.node.IsFolder() {
		return fmt.Errorf("%w: folder %s", remote.ErrNotFound, id)
	}
	return nil
}

func (s *Store) file(id string) (*entry, error) {
	e, ok := s.nodes[id]
	if !ok || e.node.IsFolder() {
		return nil, fmt.Errorf("%w: file %s", remote.ErrNotFound, id)
	}
	return e, nil
}

func (e *entry) snapshot() *remote.Node {
	n := e.node
	n.Properties = maps.Clone(e.node.Properties)
	return &n
}
