// Package index turns source records into searchable documents and keeps
// both search indexes in step with corpus mutations. The Indexer owns the
// document map; the Lifecycle manager layers mutation counting and periodic
// full rebuilds on top of it.
package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/orgmcp/internal/embed"
	"github.com/Aman-CERP/orgmcp/internal/errors"
	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

// SourceType identifies the shape of a boundary record.
type SourceType string

const (
	SourceTypeProfile   SourceType = "profile"
	SourceTypeKnowledge SourceType = "knowledge"
	SourceTypeOther     SourceType = "other"
)

// Source is the boundary record handed to the indexer by corpus loaders and
// the service layer. Profile and knowledge fields share one struct; Type (or
// the presence of Name) decides which set applies.
type Source struct {
	ID   string
	Type SourceType

	// Profile fields
	Name       string
	Role       string
	Department string
	Bio        string
	Contact    map[string]string

	// Knowledge fields
	Title string
	Body  string

	// Metadata is carried onto the document verbatim. Reserved keys
	// (content_type, role, department) are set by the indexer and win on
	// collision.
	Metadata map[string]string
}

const (
	// MaxKeywords caps the keywords extracted per document.
	MaxKeywords = 20

	// minKeywordLength drops tokens too short to carry signal.
	minKeywordLength = 3

	// titleWordLimit caps how many leading body words seed a derived title.
	titleWordLimit = 8
)

// defaultStopWords filters function words out of extracted keywords.
var defaultStopWords = store.BuildStopWordMap(store.DefaultEnglishStopWords)

// Indexer converts Sources into embedded store.Documents and holds the
// resulting document map. All mutation goes through its write lock; readers
// take snapshots. Stored documents are replaced on update, never mutated in
// place, so pointers handed out stay valid for concurrent readers.
type Indexer struct {
	producer embed.Producer

	mu   sync.RWMutex
	docs map[string]*store.Document
}

// The search engine hydrates results through the indexer.
var _ search.DocumentProvider = (*Indexer)(nil)

// NewIndexer creates an Indexer that embeds document text with producer.
func NewIndexer(producer embed.Producer) (*Indexer, error) {
	if producer == nil {
		return nil, fmt.Errorf("embedding producer is required")
	}
	return &Indexer{
		producer: producer,
		docs:     make(map[string]*store.Document),
	}, nil
}

// Dimension returns the embedding dimension documents are indexed with.
func (ix *Indexer) Dimension() int {
	return ix.producer.Dimension()
}

// IndexProfile converts a profile-shaped source into a stored document.
// The body concatenates name, role, department, and bio, then one
// "key: value" line per contact field, so every facet is searchable text.
// The title is the person's name, falling back to the source id.
func (ix *Indexer) IndexProfile(ctx context.Context, src Source) (*store.Document, error) {
	doc, err := shapeProfile(src)
	if err != nil {
		return nil, err
	}
	return ix.embedAndStore(ctx, doc)
}

// IndexKnowledge converts a knowledge-shaped source into a stored document.
// The body is the title followed by the body text; a missing title is
// derived from the opening body words, then the source id.
func (ix *Indexer) IndexKnowledge(ctx context.Context, src Source) (*store.Document, error) {
	doc, err := shapeKnowledge(src, store.ContentTypeKnowledge)
	if err != nil {
		return nil, err
	}
	return ix.embedAndStore(ctx, doc)
}

// IndexSource routes a source to the profile or knowledge shape by its Type.
// Untyped sources with a Name are treated as profiles; "other" records take
// the knowledge shape but keep their own content type label.
func (ix *Indexer) IndexSource(ctx context.Context, src Source) (*store.Document, error) {
	doc, err := shapeSource(src)
	if err != nil {
		return nil, err
	}
	return ix.embedAndStore(ctx, doc)
}

// Remove deletes the document stored under id, reporting whether it was
// present.
func (ix *Indexer) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.docs[id]; !ok {
		return false
	}
	delete(ix.docs, id)
	return true
}

// Update re-indexes an existing document under the same id; the source's
// shape may differ from the original and the last write wins. An unknown id
// is a negative result: the error carries the not-found code and nothing is
// stored.
func (ix *Indexer) Update(ctx context.Context, id string, src Source) (*store.Document, error) {
	ix.mu.RLock()
	_, ok := ix.docs[id]
	ix.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundError("document", id)
	}

	src.ID = id
	return ix.IndexSource(ctx, src)
}

// BatchIndex indexes srcs with a single batch embedding call and returns the
// documents in input order. Every source is shaped and validated before any
// embedding work; a validation failure fails the whole batch with the
// offending position in the error details, and nothing is stored.
func (ix *Indexer) BatchIndex(ctx context.Context, srcs []Source) ([]*store.Document, error) {
	if len(srcs) == 0 {
		return nil, nil
	}

	docs := make([]*store.Document, len(srcs))
	texts := make([]string, len(srcs))
	for i, src := range srcs {
		doc, err := shapeSource(src)
		if err != nil {
			if oe, ok := err.(*errors.OrgError); ok {
				return nil, oe.WithDetail("index", strconv.Itoa(i))
			}
			return nil, err
		}
		docs[i] = doc
		texts[i] = doc.BodyText
	}

	embeddings, err := ix.producer.GenerateBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("batch embedding: %w", err)
	}

	now := time.Now()
	ix.mu.Lock()
	for i, doc := range docs {
		doc.Embedding = embeddings[i]
		doc.IndexedAt = now
		ix.docs[doc.ID] = doc
	}
	ix.mu.Unlock()

	return docs, nil
}

// Documents returns the stored documents for ids in id order, skipping ids
// that are no longer present. Results are the live stored documents and must
// be treated as read-only.
func (ix *Indexer) Documents(ids []string) []*store.Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*store.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := ix.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out
}

// Export returns a point-in-time copy of every stored document, sorted by id
// for deterministic rebuilds. Mutating the result never touches indexer
// state.
func (ix *Indexer) Export() []*store.Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs := make([]*store.Document, 0, len(ix.docs))
	for _, doc := range ix.docs {
		docs = append(docs, copyDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// ExportEmbeddings returns a copy of every stored embedding keyed by
// document id.
func (ix *Indexer) ExportEmbeddings() map[string][]float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string][]float32, len(ix.docs))
	for id, doc := range ix.docs {
		vec := make([]float32, len(doc.Embedding))
		copy(vec, doc.Embedding)
		out[id] = vec
	}
	return out
}

// Count returns the number of stored documents.
func (ix *Indexer) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Contains reports whether a document exists for id.
func (ix *Indexer) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[id]
	return ok
}

// IndexerStats summarizes the document map.
type IndexerStats struct {
	// TotalDocuments is the number of stored documents.
	TotalDocuments int `json:"total_documents"`

	// CountByType breaks the total down per content type.
	CountByType map[store.ContentType]int `json:"count_by_type"`

	// AverageKeywords is the mean number of extracted keywords per document.
	AverageKeywords float64 `json:"average_keywords"`
}

// Stats reports document totals, per-type counts, and the average keyword
// count.
func (ix *Indexer) Stats() IndexerStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := IndexerStats{CountByType: make(map[store.ContentType]int)}
	var keywords int
	for _, doc := range ix.docs {
		stats.TotalDocuments++
		stats.CountByType[doc.ContentType]++
		keywords += len(doc.Keywords)
	}
	if stats.TotalDocuments > 0 {
		stats.AverageKeywords = float64(keywords) / float64(stats.TotalDocuments)
	}
	return stats
}

// embedAndStore computes the document's embedding and publishes it in the
// map. The document is fully built before it becomes visible to readers.
func (ix *Indexer) embedAndStore(ctx context.Context, doc *store.Document) (*store.Document, error) {
	embedding, err := ix.producer.Generate(ctx, doc.BodyText)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	doc.Embedding = embedding
	doc.IndexedAt = time.Now()

	ix.mu.Lock()
	ix.docs[doc.ID] = doc
	ix.mu.Unlock()

	return doc, nil
}

// shapeSource routes a source to its document shape without embedding it.
func shapeSource(src Source) (*store.Document, error) {
	switch src.Type {
	case SourceTypeProfile:
		return shapeProfile(src)
	case SourceTypeKnowledge:
		return shapeKnowledge(src, store.ContentTypeKnowledge)
	case SourceTypeOther:
		return shapeKnowledge(src, store.ContentTypeOther)
	default:
		if strings.TrimSpace(src.Name) != "" {
			return shapeProfile(src)
		}
		return shapeKnowledge(src, store.ContentTypeKnowledge)
	}
}

// shapeProfile builds the unembedded document for a profile source. Contact
// fields are rendered in sorted key order so the body text is deterministic.
func shapeProfile(src Source) (*store.Document, error) {
	var parts []string
	for _, field := range []string{src.Name, src.Role, src.Department, src.Bio} {
		if field = strings.TrimSpace(field); field != "" {
			parts = append(parts, field)
		}
	}

	keys := make([]string, 0, len(src.Contact))
	for key := range src.Contact {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if value := strings.TrimSpace(src.Contact[key]); value != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", key, value))
		}
	}

	title := strings.TrimSpace(src.Name)
	if title == "" {
		title = src.ID
	}

	meta := cloneMetadata(src.Metadata)
	meta["content_type"] = string(store.ContentTypeProfile)
	if role := strings.TrimSpace(src.Role); role != "" {
		meta["role"] = role
	}
	if dept := strings.TrimSpace(src.Department); dept != "" {
		meta["department"] = dept
	}

	return buildDocument(src.ID, store.ContentTypeProfile, title, strings.Join(parts, "\n"), meta)
}

// shapeKnowledge builds the unembedded document for a knowledge-shaped
// source. ct lets "other" records keep their own label.
func shapeKnowledge(src Source, ct store.ContentType) (*store.Document, error) {
	title := strings.TrimSpace(src.Title)
	body := strings.TrimSpace(src.Body)

	var parts []string
	if title != "" {
		parts = append(parts, title)
	}
	if body != "" {
		parts = append(parts, body)
	}

	if title == "" {
		title = deriveTitle(body, src.ID)
	}

	meta := cloneMetadata(src.Metadata)
	meta["content_type"] = string(ct)

	return buildDocument(src.ID, ct, title, strings.Join(parts, "\n"), meta)
}

// buildDocument validates the shaped fields and assembles the document.
// A source that produced no body text has nothing to index and is rejected;
// the id-derived title alone does not count as usable content.
func buildDocument(id string, ct store.ContentType, title, body string, meta map[string]string) (*store.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ValidationError("source id is required", nil)
	}
	if body == "" {
		return nil, errors.ValidationError(
			fmt.Sprintf("source %s has no usable title or body text", id), nil).
			WithDetail("id", id)
	}

	return &store.Document{
		ID:          id,
		ContentType: ct,
		Title:       title,
		BodyText:    body,
		Keywords:    ExtractKeywords(body),
		Metadata:    meta,
	}, nil
}

// ExtractKeywords pulls up to MaxKeywords salient terms from text: lowercase
// word tokens of at least three characters, stopwords removed, deduplicated
// keeping the first occurrence.
func ExtractKeywords(text string) []string {
	tokens := store.FilterMinLength(store.TokenizeWords(text), minKeywordLength)
	tokens = store.FilterStopWords(tokens, defaultStopWords)

	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, min(len(tokens), MaxKeywords))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

// deriveTitle falls back to the opening body words, then the id.
func deriveTitle(body, id string) string {
	words := strings.Fields(body)
	if len(words) == 0 {
		return id
	}
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	return strings.Join(words, " ")
}

// cloneMetadata copies caller metadata so documents never alias source maps.
func cloneMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+3)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// copyDocument deep-copies a document for export.
func copyDocument(doc *store.Document) *store.Document {
	cp := *doc
	cp.Keywords = append([]string(nil), doc.Keywords...)
	cp.Embedding = append([]float32(nil), doc.Embedding...)
	if doc.Metadata != nil {
		cp.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
