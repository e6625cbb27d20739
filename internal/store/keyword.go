package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Vectorizer turns text into TF-IDF rows over a vocabulary fitted from a
// corpus. IDF is global: changing any document changes every weight, which
// is why the index only supports full rebuilds.
type Vectorizer struct {
	config     VectorizerConfig
	stopWords  map[string]struct{}
	vocabulary map[string]int // term -> column
	terms      []string       // column -> term, alphabetical
	idf        []float64
	fitted     bool
}

// NewVectorizer creates an unfitted vectorizer for the given configuration.
func NewVectorizer(config VectorizerConfig) *Vectorizer {
	return &Vectorizer{
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}
}

// analyze produces the n-gram terms for one text: lowercase word tokens,
// minimum length applied, stopwords removed, then n-grams joined with spaces.
func (v *Vectorizer) analyze(text string) []string {
	tokens := TokenizeWords(text)
	tokens = FilterMinLength(tokens, v.config.MinTokenLength)
	tokens = FilterStopWords(tokens, v.stopWords)
	return WordNGrams(tokens, v.config.NGramMin, v.config.NGramMax)
}

// Fit builds the vocabulary and IDF weights from the corpus. The vocabulary
// keeps the MaxVocabulary most frequent terms (total occurrences across the
// corpus, ties broken alphabetically); columns are assigned in alphabetical
// order. IDF uses the smoothed form ln((1+n)/(1+df)) + 1, which keeps every
// weight positive even for terms present in all documents.
func (v *Vectorizer) Fit(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("cannot fit vectorizer on an empty corpus")
	}

	df := make(map[string]int)
	cf := make(map[string]int)
	for _, text := range texts {
		terms := v.analyze(text)
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			cf[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				df[term]++
			}
		}
	}
	if len(cf) == 0 {
		return fmt.Errorf("corpus produced an empty vocabulary")
	}

	candidates := make([]string, 0, len(cf))
	for term := range cf {
		candidates = append(candidates, term)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if cf[candidates[i]] != cf[candidates[j]] {
			return cf[candidates[i]] > cf[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	if v.config.MaxVocabulary > 0 && len(candidates) > v.config.MaxVocabulary {
		candidates = candidates[:v.config.MaxVocabulary]
	}
	sort.Strings(candidates)

	n := float64(len(texts))
	vocabulary := make(map[string]int, len(candidates))
	idf := make([]float64, len(candidates))
	for col, term := range candidates {
		vocabulary[term] = col
		idf[col] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	v.vocabulary = vocabulary
	v.terms = candidates
	v.idf = idf
	v.fitted = true
	return nil
}

// Transform projects text into the fitted term space as an L2-normalized
// TF-IDF row. Terms outside the vocabulary are ignored; a text with no
// vocabulary terms yields an all-zero row.
func (v *Vectorizer) Transform(text string) []float64 {
	row := make([]float64, len(v.terms))
	if !v.fitted {
		return row
	}

	for _, term := range v.analyze(text) {
		if col, ok := v.vocabulary[term]; ok {
			row[col]++
		}
	}

	var norm float64
	for col := range row {
		row[col] *= v.idf[col]
		norm += row[col] * row[col]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for col := range row {
			row[col] /= norm
		}
	}
	return row
}

// Fitted reports whether Fit has completed successfully.
func (v *Vectorizer) Fitted() bool {
	return v.fitted
}

// VocabularySize returns the number of fitted terms.
func (v *Vectorizer) VocabularySize() int {
	return len(v.terms)
}

// configFingerprint hashes the parts of the configuration that change what a
// fitted vocabulary means: the cap, the n-gram range, the minimum token
// length, and the stopword set (order-independent). Artifacts fitted under a
// different configuration are rejected on load.
func configFingerprint(config VectorizerConfig) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "max_vocabulary=%d;ngram=%d-%d;min_token=%d;", config.MaxVocabulary, config.NGramMin, config.NGramMax, config.MinTokenLength)
	words := make([]string, len(config.StopWords))
	copy(words, config.StopWords)
	sort.Strings(words)
	for _, w := range words {
		_, _ = h.Write([]byte(w))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// TFIDFIndex implements KeywordIndex with a TF-IDF vectorizer and dense
// per-document rows. Rows are L2-normalized at build time, so ranking a
// query is a dot product per document.
type TFIDFIndex struct {
	mu         sync.RWMutex
	config     VectorizerConfig
	vectorizer *Vectorizer
	rows       map[string][]float64
	closed     bool
}

// keywordIndexState is the gob-serialized form: vectorizer, matrix, and
// document mapping as one unit so they can never drift apart on disk.
type keywordIndexState struct {
	FormatVersion int
	Fingerprint   uint64
	Config        VectorizerConfig
	Vocabulary    map[string]int
	Terms         []string
	IDF           []float64
	Rows          map[string][]float64
}

// Compile-time interface check
var _ KeywordIndex = (*TFIDFIndex)(nil)

// NewTFIDFIndex creates an empty keyword index for the given configuration.
func NewTFIDFIndex(config VectorizerConfig) *TFIDFIndex {
	return &TFIDFIndex{
		config:     config,
		vectorizer: NewVectorizer(config),
		rows:       make(map[string][]float64),
	}
}

// documentText is what the vectorizer sees for one document: title, body,
// and the extracted keywords (which boost the terms the indexer considered
// significant).
func documentText(doc *Document) string {
	parts := make([]string, 0, 3)
	if doc.Title != "" {
		parts = append(parts, doc.Title)
	}
	if doc.BodyText != "" {
		parts = append(parts, doc.BodyText)
	}
	if len(doc.Keywords) > 0 {
		parts = append(parts, strings.Join(doc.Keywords, " "))
	}
	return strings.Join(parts, "\n")
}

// Build replaces the entire index contents from docs. Fitting and row
// computation happen aside; the index fields are swapped only on success, so
// a failed build leaves the previous contents live.
func (t *TFIDFIndex) Build(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("cannot build keyword index from an empty corpus")
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = documentText(doc)
	}

	vectorizer := NewVectorizer(t.config)
	if err := vectorizer.Fit(texts); err != nil {
		return fmt.Errorf("fit vectorizer: %w", err)
	}

	rows := make(map[string][]float64, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if doc.ID == "" {
			return fmt.Errorf("document at position %d has no id", i)
		}
		rows[doc.ID] = vectorizer.Transform(texts[i])
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("keyword index is closed")
	}
	t.vectorizer = vectorizer
	t.rows = rows
	return nil
}

// Config returns the vectorizer configuration the index was created with.
// Callers use it to construct a compatible replacement index.
func (t *TFIDFIndex) Config() VectorizerConfig {
	return t.config
}

// Search projects the query into the fitted term space and ranks documents
// by cosine (dot product of normalized rows). Hits below minScore are
// discarded; order is score descending, ties by ascending document ID.
// An unbuilt or empty index returns an empty result, never an error.
func (t *TFIDFIndex) Search(ctx context.Context, query string, topK int, minScore float64) ([]*KeywordResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}

	results := make([]*KeywordResult, 0)
	if !t.vectorizer.Fitted() || len(t.rows) == 0 || topK <= 0 {
		return results, nil
	}

	qrow := t.vectorizer.Transform(query)

	for id, row := range t.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var score float64
		for col, qv := range qrow {
			if qv != 0 {
				score += qv * row[col]
			}
		}
		if score < minScore {
			continue
		}
		var matched []string
		for col, qv := range qrow {
			if qv > 0 && row[col] > 0 {
				matched = append(matched, t.vectorizer.terms[col])
			}
		}
		results = append(results, &KeywordResult{DocID: id, Score: score, MatchedTerms: matched})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// AllIDs returns all document IDs in ascending order.
func (t *TFIDFIndex) AllIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of indexed documents.
func (t *TFIDFIndex) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// VocabularySize returns the number of fitted terms.
func (t *TFIDFIndex) VocabularySize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vectorizer.VocabularySize()
}

// Stats returns index statistics.
func (t *TFIDFIndex) Stats() *IndexStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &IndexStats{
		DocumentCount:  len(t.rows),
		VocabularySize: t.vectorizer.VocabularySize(),
	}
}

// Save writes vectorizer, matrix, and document mapping as one versioned gob
// artifact, tagged with the configuration fingerprint. The write goes
// through a temp file and rename.
func (t *TFIDFIndex) Save(path string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return fmt.Errorf("keyword index is closed")
	}

	state := keywordIndexState{
		FormatVersion: KeywordFormatVersion,
		Fingerprint:   configFingerprint(t.config),
		Config:        t.config,
		Vocabulary:    t.vectorizer.vocabulary,
		Terms:         t.vectorizer.terms,
		IDF:           t.vectorizer.idf,
		Rows:          t.rows,
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
		return fmt.Errorf("encode keyword index: %w", err)
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
// ErrVersionMismatch when the format version is unknown or the artifact was
// fitted under a different vectorizer configuration. In-memory state is
// unchanged on any failure.
func (t *TFIDFIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open keyword index: %w", err)
	}
	defer func() { _ = file.Close() }()

	var state keywordIndexState
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		return fmt.Errorf("decode keyword index: %w", err)
	}

	if state.FormatVersion != KeywordFormatVersion {
		return ErrVersionMismatch{
			Path:   path,
			Reason: fmt.Sprintf("format version %d, want %d", state.FormatVersion, KeywordFormatVersion),
		}
	}
	if want := configFingerprint(t.config); state.Fingerprint != want {
		return ErrVersionMismatch{
			Path:   path,
			Reason: fmt.Sprintf("vectorizer fingerprint %x, want %x", state.Fingerprint, want),
		}
	}
	if len(state.Terms) != len(state.IDF) || len(state.Terms) != len(state.Vocabulary) {
		return ErrVersionMismatch{Path: path, Reason: "vocabulary tables disagree in size"}
	}
	for id, row := range state.Rows {
		if len(row) != len(state.Terms) {
			return ErrVersionMismatch{
				Path:   path,
				Reason: fmt.Sprintf("row %q has %d columns, want %d", id, len(row), len(state.Terms)),
			}
		}
	}

	vectorizer := NewVectorizer(t.config)
	vectorizer.vocabulary = state.Vocabulary
	vectorizer.terms = state.Terms
	vectorizer.idf = state.IDF
	vectorizer.fitted = len(state.Terms) > 0

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("keyword index is closed")
	}
	t.vectorizer = vectorizer
	if state.Rows != nil {
		t.rows = state.Rows
	} else {
		t.rows = make(map[string][]float64)
	}
	return nil
}

// Close releases the index. Further operations fail.
func (t *TFIDFIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.rows = nil
	return nil
}
