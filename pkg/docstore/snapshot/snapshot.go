// Package snapshot exports docstore collections as JSONL and ships the
// result to S3 or a local file, once or on a schedule.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/smart-zoo-assistant/pkg/docstore"
)

type Config struct {
	S3Bucket   string        `envconfig:"S3_BUCKET" split_words:"true"`
	S3Key      string        `envconfig:"S3_KEY" split_words:"true" default:"smart-zoo/snapshot.jsonl"`
	S3Region   string        `envconfig:"S3_REGION" split_words:"true" default:"us-east-1"`
	S3Endpoint string        `envconfig:"S3_ENDPOINT" split_words:"true"`
	Interval   time.Duration `envconfig:"INTERVAL" split_words:"true" default:"0s"`
}

// header is the first JSONL record written by Export.
type header struct {
	Version     string         `json:"version"`
	Type        string         `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Collections map[string]int `json:"collections"`
}

// record wraps a single document line with its collection.
type record struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Version    int64           `json:"version"`
	Data       json.RawMessage `json:"data"`
}

// Export writes every document of the named collections to w, one JSON
// object per line, preceded by a header with per-collection counts.
func Export(ctx context.Context, s docstore.Store, collections []string, w io.Writer) error {
	all := make(map[string][]docstore.Document, len(collections))
	counts := make(map[string]int, len(collections))
	for _, name := range collections {
		docs, err := s.Collection(name).List(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", name, err)
		}
		all[name] = docs
		counts[name] = len(docs)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		Collections: counts,
	}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, name := range collections {
		for _, doc := range all[name] {
			if err := enc.Encode(record{
				Type:       "document",
				Collection: name,
				ID:         doc.ID,
				Version:    doc.Version,
				Data:       doc.Data,
			}); err != nil {
				return fmt.Errorf("write %s/%s: %w", name, doc.ID, err)
			}
		}
	}
	return nil
}

// Destination receives an exported snapshot.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// FileDestination writes snapshots to a local path atomically.
type FileDestination struct {
	Path string
}

func (d FileDestination) Write(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(d.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := d.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, d.Path)
}

// Once exports the collections and writes the result to every destination.
// Destination failures are logged; the first one is returned.
func Once(ctx context.Context, s docstore.Store, collections []string, destinations ...Destination) (int, error) {
	var buf bytes.Buffer
	if err := Export(ctx, s, collections, &buf); err != nil {
		return 0, err
	}
	data := buf.Bytes()

	var firstErr error
	for i, dest := range destinations {
		if err := dest.Write(ctx, data); err != nil {
			log.Ctx(ctx).Error().Err(err).Int("destination", i).Msg("snapshot destination write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return len(data), firstErr
}

// Scheduler runs periodic snapshots.
type Scheduler struct {
	store        docstore.Store
	collections  []string
	destinations []Destination
	interval     time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(s docstore.Store, collections []string, destinations []Destination, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:        s,
		collections:  collections,
		destinations: destinations,
		interval:     interval,
	}
}

// Start runs one snapshot immediately, then one per interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current snapshot to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.snapshotOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.snapshotOnce(ctx)
		}
	}
}

func (s *Scheduler) snapshotOnce(ctx context.Context) {
	n, err := Once(ctx, s.store, s.collections, s.destinations...)
	if err != nil {
		log.Error().Err(err).Msg("snapshot failed")
		return
	}
	log.Info().Int("destinations", len(s.destinations)).Int("bytes", n).Msg("snapshot completed")
}
