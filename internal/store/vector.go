package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatVectorIndex implements VectorIndex with an exhaustive cosine scan.
// Search is O(N*d); that is the intended ceiling for this corpus size
// (hundreds to low thousands of short documents), not a defect. Nothing
// here is approximate, so results are fully deterministic.
type FlatVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*vectorEntry
	closed    bool
}

type vectorEntry struct {
	Vector []float32
	Meta   map[string]string
}

// flatIndexState is the gob-serialized form of the index.
type flatIndexState struct {
	FormatVersion int
	Dimension     int
	Vectors       map[string][]float32
	Meta          map[string]map[string]string
}

// Compile-time interface check
var _ VectorIndex = (*FlatVectorIndex)(nil)

// NewFlatVectorIndex creates an empty index for vectors of the given dimension.
func NewFlatVectorIndex(dimension int) (*FlatVectorIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return &FlatVectorIndex{
		dimension: dimension,
		entries:   make(map[string]*vectorEntry),
	}, nil
}

// Add inserts a vector with its ID and metadata. Re-adding an ID replaces the
// previous entry. A wrong-length vector is rejected and the index is unchanged.
func (f *FlatVectorIndex) Add(ctx context.Context, id string, vector []float32, meta map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("vector index is closed")
	}
	if id == "" {
		return fmt.Errorf("vector id is required")
	}
	if len(vector) != f.dimension {
		return ErrDimensionMismatch{Expected: f.dimension, Got: len(vector)}
	}

	f.entries[id] = newVectorEntry(vector, meta)
	return nil
}

// AddBatch inserts vectors for ids[i] = vectors[i]. Every dimension is
// validated before the first insert, so a failed batch leaves the index
// unchanged. meta may be nil or shorter than ids.
func (f *FlatVectorIndex) AddBatch(ctx context.Context, ids []string, vectors [][]float32, meta []map[string]string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("vector index is closed")
	}
	for i, vec := range vectors {
		if ids[i] == "" {
			return fmt.Errorf("vector id at position %d is required", i)
		}
		if len(vec) != f.dimension {
			return ErrDimensionMismatch{Expected: f.dimension, Got: len(vec)}
		}
	}

	for i, id := range ids {
		var m map[string]string
		if i < len(meta) {
			m = meta[i]
		}
		f.entries[id] = newVectorEntry(vectors[i], m)
	}
	return nil
}

func newVectorEntry(vector []float32, meta map[string]string) *vectorEntry {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var m map[string]string
	if meta != nil {
		m = make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
	}
	return &vectorEntry{Vector: vec, Meta: m}
}

// Remove deletes a vector by ID, reporting whether it was present.
func (f *FlatVectorIndex) Remove(ctx context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, ok := f.entries[id]; !ok {
		return false
	}
	delete(f.entries, id)
	return true
}

// Contains checks if ID exists.
func (f *FlatVectorIndex) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.entries[id]
	return ok
}

// Get returns a copy of the stored vector and metadata for id.
func (f *FlatVectorIndex) Get(id string) ([]float32, map[string]string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entry, ok := f.entries[id]
	if !ok {
		return nil, nil, false
	}
	vec := make([]float32, len(entry.Vector))
	copy(vec, entry.Vector)
	meta := make(map[string]string, len(entry.Meta))
	for k, v := range entry.Meta {
		meta[k] = v
	}
	return vec, meta, true
}

// Search scans every stored vector and returns the topK hits with cosine
// score >= minScore, ordered by score descending with ties broken by
// ascending ID. An empty index returns an empty result, never an error.
func (f *FlatVectorIndex) Search(ctx context.Context, query []float32, topK int, minScore float64) ([]*VectorResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != f.dimension {
		return nil, ErrDimensionMismatch{Expected: f.dimension, Got: len(query)}
	}

	results := make([]*VectorResult, 0, len(f.entries))
	if topK <= 0 || len(f.entries) == 0 {
		return results, nil
	}

	for id, entry := range f.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := cosineSimilarity(query, entry.Vector)
		if score < minScore {
			continue
		}
		results = append(results, &VectorResult{ID: id, Score: score, Meta: entry.Meta})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns number of vectors.
func (f *FlatVectorIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Dimension returns the configured vector dimension.
func (f *FlatVectorIndex) Dimension() int {
	return f.dimension
}

// AllIDs returns all vector IDs in ascending order.
func (f *FlatVectorIndex) AllIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the index to path as a versioned gob artifact. The write goes
// through a temp file and rename, so a crash mid-write never leaves a
// truncated artifact behind.
func (f *FlatVectorIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return fmt.Errorf("vector index is closed")
	}

	state := flatIndexState{
		FormatVersion: VectorFormatVersion,
		Dimension:     f.dimension,
		Vectors:       make(map[string][]float32, len(f.entries)),
		Meta:          make(map[string]map[string]string, len(f.entries)),
	}
	for id, entry := range f.entries {
		state.Vectors[id] = entry.Vector
		if entry.Meta != nil {
			state.Meta[id] = entry.Meta
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(&state); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode vector index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load replaces the index contents from a saved artifact. It fails fast with
// ErrVersionMismatch when the artifact's format version is unknown or its
// dimension differs from the configured one. In-memory state is unchanged on
// any failure.
func (f *FlatVectorIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer func() { _ = file.Close() }()

	var state flatIndexState
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		return fmt.Errorf("decode vector index: %w", err)
	}

	if state.FormatVersion != VectorFormatVersion {
		return ErrVersionMismatch{
			Path:   path,
			Reason: fmt.Sprintf("format version %d, want %d", state.FormatVersion, VectorFormatVersion),
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("vector index is closed")
	}
	if state.Dimension != f.dimension {
		return ErrVersionMismatch{
			Path:   path,
			Reason: fmt.Sprintf("dimension %d, want %d", state.Dimension, f.dimension),
		}
	}

	entries := make(map[string]*vectorEntry, len(state.Vectors))
	for id, vec := range state.Vectors {
		if len(vec) != f.dimension {
			return ErrVersionMismatch{
				Path:   path,
				Reason: fmt.Sprintf("vector %q has dimension %d, want %d", id, len(vec), f.dimension),
			}
		}
		entries[id] = &vectorEntry{Vector: vec, Meta: state.Meta[id]}
	}

	f.entries = entries
	return nil
}

// Close releases the index. Further operations fail.
func (f *FlatVectorIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.entries = nil
	return nil
}

// ReadVectorIndexDimension reads the dimension tag from a saved artifact
// without constructing an index. Returns 0 if the file does not exist,
// so callers can distinguish "no index yet" from a real mismatch.
func ReadVectorIndexDimension(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open vector index: %w", err)
	}
	defer func() { _ = file.Close() }()

	var state flatIndexState
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		return 0, fmt.Errorf("decode vector index: %w", err)
	}
	return state.Dimension, nil
}

// cosineSimilarity computes the cosine of the angle between two equal-length
// vectors, accumulating in float64 for stability. Zero-norm vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
