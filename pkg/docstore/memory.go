package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryStore keeps every collection in process memory. When a data dir is
// set, each collection is mirrored to <dir>/<collection>.json after every
// write and reloaded on start.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	persister   *persistence
	wg          sync.WaitGroup
}

type memCollection struct {
	name  string
	order []string
	docs  map[string]Document
	// seq increases with every write so stale background saves can be dropped.
	seq uint64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	s := &MemoryStore{collections: make(map[string]*memCollection)}
	if strings.TrimSpace(dataDir) == "" {
		return s, nil
	}

	p, err := newPersistence(dataDir)
	if err != nil {
		return nil, err
	}
	loaded, err := p.loadAll()
	if err != nil {
		return nil, err
	}
	for name, docs := range loaded {
		c := newMemCollection(name)
		for _, doc := range docs {
			if _, dup := c.docs[doc.ID]; dup {
				continue
			}
			c.order = append(c.order, doc.ID)
			c.docs[doc.ID] = doc
		}
		s.collections[name] = c
	}
	s.persister = p
	return s, nil
}

func newMemCollection(name string) *memCollection {
	return &memCollection{name: name, docs: make(map[string]Document)}
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

// Wait blocks until background persistence has finished.
func (s *MemoryStore) Wait() {
	s.wg.Wait()
}

func (s *MemoryStore) Close() error {
	s.Wait()
	return nil
}

// snapshotLocked copies a collection for background persistence.
// It MUST be called while holding s.mu.
func (s *MemoryStore) snapshotLocked(c *memCollection) (uint64, []Document) {
	docs := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, cloneDocument(c.docs[id]))
	}
	return c.seq, docs
}

func (s *MemoryStore) persist(name string, seq uint64, docs []Document) {
	if s.persister == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.persister.save(name, seq, docs); err != nil {
			log.Error().Err(err).Str("collection", name).Msg("docstore: persist collection failed")
		}
	}()
}

type memoryCollection struct {
	store *MemoryStore
	name  string
}

func (c *memoryCollection) List(ctx context.Context) ([]Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col, ok := c.store.collections[c.name]
	if !ok {
		return []Document{}, nil
	}
	out := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, cloneDocument(col.docs[id]))
	}
	return out, nil
}

func (c *memoryCollection) FindByID(ctx context.Context, id string) (Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col, ok := c.store.collections[c.name]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc, ok := col.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (c *memoryCollection) FindByField(ctx context.Context, field, value string) ([]Document, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	out := []Document{}
	col, ok := c.store.collections[c.name]
	if !ok {
		return out, nil
	}
	for _, id := range col.order {
		doc := col.docs[id]
		if fieldEquals(doc.Data, field, value) {
			out = append(out, cloneDocument(doc))
		}
	}
	return out, nil
}

func (c *memoryCollection) Insert(ctx context.Context, id string, data json.RawMessage) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateBody(data); err != nil {
		return err
	}

	c.store.mu.Lock()
	col, ok := c.store.collections[c.name]
	if !ok {
		col = newMemCollection(c.name)
		c.store.collections[c.name] = col
	}
	if _, exists := col.docs[id]; exists {
		c.store.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, c.name, id)
	}
	col.order = append(col.order, id)
	col.docs[id] = Document{ID: id, Version: 1, Data: cloneRaw(data)}
	col.seq++
	seq, docs := c.store.snapshotLocked(col)
	c.store.mu.Unlock()

	c.store.persist(c.name, seq, docs)
	return nil
}

// Update holds the store write lock across mutate, so concurrent updates to
// the same document are serialized and never lost.
func (c *memoryCollection) Update(ctx context.Context, id string, mutate Mutator) error {
	c.store.mu.Lock()
	col, ok := c.store.collections[c.name]
	if !ok {
		c.store.mu.Unlock()
		return ErrNotFound
	}
	doc, ok := col.docs[id]
	if !ok {
		c.store.mu.Unlock()
		return ErrNotFound
	}

	next, err := mutate(cloneRaw(doc.Data))
	if err != nil {
		c.store.mu.Unlock()
		return err
	}
	if err := validateBody(next); err != nil {
		c.store.mu.Unlock()
		return err
	}

	col.docs[id] = Document{ID: id, Version: doc.Version + 1, Data: cloneRaw(next)}
	col.seq++
	seq, docs := c.store.snapshotLocked(col)
	c.store.mu.Unlock()

	c.store.persist(c.name, seq, docs)
	return nil
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}

func cloneDocument(d Document) Document {
	d.Data = cloneRaw(d.Data)
	return d
}

// persistence handles the disk I/O for the MemoryStore.
type persistence struct {
	dir   string
	mu    sync.Mutex
	saved map[string]uint64
}

func newPersistence(dir string) (*persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create data dir: %w", err)
	}
	return &persistence{dir: dir, saved: make(map[string]uint64)}, nil
}

// save writes a collection atomically. A snapshot older than one already on
// disk is skipped.
func (p *persistence) save(name string, seq uint64, docs []Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq <= p.saved[name] {
		return nil
	}

	path := filepath.Join(p.dir, name+".json")
	tmp := path + ".tmp"

	b, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	p.saved[name] = seq
	return nil
}

func (p *persistence) loadAll() (map[string][]Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("docstore: read data dir: %w", err)
	}

	out := make(map[string][]Document)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		content, err := os.ReadFile(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("docstore: skipping unreadable collection file")
			continue
		}
		var docs []Document
		if err := json.Unmarshal(content, &docs); err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("docstore: skipping corrupt collection file")
			continue
		}
		out[name] = docs
	}
	return out, nil
}
