package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lajos93/canvas-tile-api/internal/storage"
)

// Job states written to the record
const (
	Running  = "running"
	Finished = "finished"
	Stopped  = "stopped"
	Failed   = "failed"
)

// Document raw status record; unknown fields written by Patch survive updates.
type Document map[string]interface{}

// CategoryStatus zooms completed for one category key
type CategoryStatus struct {
	Zooms       []int  `json:"zooms"`
	LastUpdated string `json:"lastUpdated"`
}

// Record typed view of the managed fields
type Record struct {
	Status      string                    `json:"status,omitempty"`
	StartedAt   string                    `json:"startedAt,omitempty"`
	FinishedAt  string                    `json:"finishedAt,omitempty"`
	LastUpdated string                    `json:"lastUpdated,omitempty"`
	Categories  map[string]CategoryStatus `json:"categories,omitempty"`
}

// Update one status event. Zoom is recorded only together with CategoryKey;
// zero values leave the stored field untouched.
type Update struct {
	CategoryKey string
	Zoom        *int
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time
	// Fields extra top-level values, merged like Patch
	Fields Document
}

// Store read-merge-write access to the status object. Writers in this process
// are serialized; across processes the last writer wins.
type Store struct {
	blobs storage.Store
	key   string
	now   func() time.Time
	log   logrus.FieldLogger

	mu sync.Mutex
}

func New(blobs storage.Store, log logrus.FieldLogger) *Store {
	return &Store{
		blobs: blobs,
		key:   storage.StatusKey,
		now:   time.Now,
		log:   log.WithField("component", "status"),
	}
}

// Get current document, empty when nothing was written yet.
func (s *Store) Get(ctx context.Context) (Document, error) {
	data, ok, err := storage.GetIfExists(ctx, s.blobs, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	doc := Document{}
	if !ok || len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return doc, nil
}

// Record typed view of Get
func (s *Store) Record(ctx context.Context) (Record, error) {
	var rec Record
	doc, err := s.Get(ctx)
	if err != nil {
		return rec, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return rec, err
	}
	return rec, json.Unmarshal(data, &rec)
}

// Update merges u into the stored record and writes it back.
func (s *Store) Update(ctx context.Context, u Update) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)

	if u.CategoryKey != "" && u.Zoom != nil {
		addZoom(doc, u.CategoryKey, *u.Zoom, now)
	}
	if u.Fields != nil {
		doc = merge(doc, u.Fields)
	}
	if u.Status != "" {
		doc["status"] = u.Status
	}
	if !u.StartedAt.IsZero() {
		doc["startedAt"] = u.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !u.FinishedAt.IsZero() {
		doc["finishedAt"] = u.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	doc["lastUpdated"] = now

	if err := s.write(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Debugf("status updated for %s (zoom=%s)", orGeneral(u.CategoryKey), zoomText(u.Zoom))
	return doc, nil
}

// Patch deep merges an arbitrary object into the record: objects merge key
// by key, arrays and scalars replace.
func (s *Store) Patch(ctx context.Context, patch Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	doc = merge(doc, patch)
	if err := s.write(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) write(ctx context.Context, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if _, err := s.blobs.Put(ctx, s.key, data, "application/json"); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

func addZoom(doc Document, category string, zoom int, now string) {
	cats, _ := doc["categories"].(map[string]interface{})
	if cats == nil {
		cats = map[string]interface{}{}
	}
	entry, _ := cats[category].(map[string]interface{})
	if entry == nil {
		entry = map[string]interface{}{}
	}

	zooms := []int{zoom}
	if list, ok := entry["zooms"].([]interface{}); ok {
		for _, v := range list {
			if f, ok := v.(float64); ok {
				zooms = append(zooms, int(f))
			}
		}
	}

	entry["zooms"] = sortedSet(zooms)
	entry["lastUpdated"] = now
	cats[category] = entry
	doc["categories"] = cats
}

func sortedSet(in []int) []int {
	sort.Ints(in)
	out := in[:0]
	for i, v := range in {
		if i > 0 && v == in[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// merge src into dst. Nested objects merge recursively, anything else in
// src (arrays included) replaces the value in dst.
func merge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for k, sv := range src {
		sm, srcIsMap := asMap(sv)
		dm, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			dst[k] = merge(dm, sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

func orGeneral(category string) string {
	if category == "" {
		return "general"
	}
	return category
}

func zoomText(z *int) string {
	if z == nil {
		return "n/a"
	}
	return fmt.Sprint(*z)
}
