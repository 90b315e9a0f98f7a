// Package state persists per-extractor incremental state as JSON files
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"plexingest/internal/core/timeparse"
	perr "plexingest/internal/platform/errors"
	"plexingest/internal/platform/logger"
)

// ringLimit bounds every processed-id list so state files cannot grow
// without end
const ringLimit = 10_000

// Store keeps one `{name}_raw_state.json` file per extractor under dir.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a torn state file
type Store struct {
	dir string
	mu  sync.Mutex
	log logger.Logger
}

// NewStore creates dir if needed and returns a Store over it
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "./state"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "state dir %s", dir)
	}
	return &Store{dir: dir, log: *logger.Named("state")}, nil
}

// Dir returns the state directory path
func (s *Store) Dir() string { return s.dir }

// LastExtractionTime returns the stored watermark for name; ok is false
// when the extractor has never completed a cycle or the value is unreadable
func (s *Store) LastExtractionTime(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(name)
	obj, _ := doc[name].(map[string]any)
	raw, ok := obj["last_extraction_time"]
	if !ok {
		return time.Time{}, false
	}
	t, err := timeparse.Parse(raw)
	if err != nil {
		s.log.Warn().Str("extractor", name).Err(err).Msg("unreadable watermark, treating as unset")
		return time.Time{}, false
	}
	return t, true
}

// SetLastExtractionTime durably advances the watermark. Regressions are
// clamped: an earlier time than the stored one is ignored
func (s *Store) SetLastExtractionTime(name string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(name)
	obj, _ := doc[name].(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	if raw, ok := obj["last_extraction_time"]; ok {
		if prev, err := timeparse.Parse(raw); err == nil && t.Before(prev) {
			s.log.Warn().Str("extractor", name).
				Time("stored", prev).Time("proposed", t).
				Msg("watermark regression ignored")
			return nil
		}
	}
	obj["last_extraction_time"] = timeparse.Format(t)
	doc[name] = obj
	return s.save(name, doc)
}

// ProcessedIDs returns the bounded dedup ring for resource, newest last
func (s *Store) ProcessedIDs(name, resource string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(name)
	raw, _ := doc["processed_"+resource+"_ids"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			out = append(out, id)
		}
	}
	return out
}

// AddProcessedIDs appends ids to the ring for resource, dropping the
// oldest entries beyond the ring limit
func (s *Store) AddProcessedIDs(name, resource string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load(name)
	key := "processed_" + resource + "_ids"

	seen := map[string]bool{}
	var ring []string
	appendID := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ring = append(ring, id)
	}
	if raw, ok := doc[key].([]any); ok {
		for _, v := range raw {
			if id, ok := v.(string); ok {
				appendID(id)
			}
		}
	}
	for _, id := range ids {
		appendID(id)
	}
	if len(ring) > ringLimit {
		ring = ring[len(ring)-ringLimit:]
	}

	doc[key] = ring
	return s.save(name, doc)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+"_raw_state.json")
}

// load reads the state document for name; missing or corrupt files yield
// an empty document so a bad file never wedges the extractor
func (s *Store) load(name string) map[string]any {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		s.log.Warn().Str("extractor", name).Err(err).Msg("corrupt state file, starting fresh")
		return map[string]any{}
	}
	return doc
}

// save writes the document atomically via temp file and rename
func (s *Store) save(name string, doc map[string]any) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "state encode %s", name)
	}
	final := s.path(name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "state write %s", name)
	}
	if err := os.Rename(tmp, final); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "state rename %s", name)
	}
	return nil
}
