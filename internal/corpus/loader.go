// Package corpus loads profile and knowledge records from YAML or JSON
// files. A record file holds either a single record or profiles: /
// knowledge: lists; YAML is a superset of JSON, so one decoder covers
// both extensions.
package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MaxRecordFileSize caps how large a single record file may be.
const MaxRecordFileSize = 5 << 20 // 5 MiB

// Kind discriminates the two record shapes.
type Kind string

const (
	KindProfile   Kind = "profile"
	KindKnowledge Kind = "knowledge"
)

// ProfileRecord is a person entry as written in a corpus file.
type ProfileRecord struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Role       string            `yaml:"role" json:"role"`
	Department string            `yaml:"department" json:"department"`
	Bio        string            `yaml:"bio" json:"bio"`
	Contact    map[string]string `yaml:"contact" json:"contact"`
	SourceURL  string            `yaml:"source_url" json:"source_url"`
	Metadata   map[string]string `yaml:"metadata" json:"metadata"`
}

// KnowledgeRecord is a knowledge entry (policy, how-to, FAQ) as written
// in a corpus file.
type KnowledgeRecord struct {
	ID        string            `yaml:"id" json:"id"`
	Title     string            `yaml:"title" json:"title"`
	Body      string            `yaml:"body" json:"body"`
	Category  string            `yaml:"category" json:"category"`
	SourceURL string            `yaml:"source_url" json:"source_url"`
	Metadata  map[string]string `yaml:"metadata" json:"metadata"`
}

// Record is one parsed corpus record. Exactly one of Profile and
// Knowledge is set, matching Kind.
type Record struct {
	Kind      Kind
	Profile   *ProfileRecord
	Knowledge *KnowledgeRecord
}

// FileError reports a corpus file that could not be loaded.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// fileDoc is the superset shape a record file may take: list form
// (profiles/knowledge) or a single record. When kind is absent on a
// single record, name selects a profile, title or body a knowledge
// entry.
type fileDoc struct {
	Kind      string            `yaml:"kind"`
	Profiles  []ProfileRecord   `yaml:"profiles"`
	Knowledge []KnowledgeRecord `yaml:"knowledge"`

	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Role       string            `yaml:"role"`
	Department string            `yaml:"department"`
	Bio        string            `yaml:"bio"`
	Contact    map[string]string `yaml:"contact"`
	Title      string            `yaml:"title"`
	Body       string            `yaml:"body"`
	Category   string            `yaml:"category"`
	SourceURL  string            `yaml:"source_url"`
	Metadata   map[string]string `yaml:"metadata"`
}

// corpusExtensions are the file types LoadDir picks up.
var corpusExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// IsRecordPath reports whether path names a corpus record file by
// extension. The watcher uses the same test so it only surfaces
// changes the loader can act on.
func IsRecordPath(path string) bool {
	return corpusExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadDir reads every record file under dir, recursively, skipping
// hidden files and directories. A file that fails to load is reported
// in errs and skipped; the rest of the directory still loads. The
// returned error covers directory-level failures only.
func LoadDir(dir string) (records []Record, errs []FileError, err error) {
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !IsRecordPath(name) {
			return nil
		}

		recs, ferr := LoadFile(path)
		if ferr != nil {
			errs = append(errs, FileError{Path: path, Err: ferr})
			return nil
		}
		records = append(records, recs...)
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk corpus directory: %w", walkErr)
	}
	return records, errs, nil
}

// LoadFile parses one record file.
func LoadFile(path string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat corpus file: %w", err)
	}
	if info.Size() > MaxRecordFileSize {
		return nil, fmt.Errorf("corpus file is %d bytes, limit is %d", info.Size(), MaxRecordFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}
	return Parse(data)
}

// Parse decodes record file contents. Records without ids get stable
// ones derived from their kind and name or title, so reloading the
// same file updates records in place instead of duplicating them.
func Parse(data []byte) ([]Record, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus file: %w", err)
	}

	if len(doc.Profiles) > 0 || len(doc.Knowledge) > 0 {
		records := make([]Record, 0, len(doc.Profiles)+len(doc.Knowledge))
		for i := range doc.Profiles {
			p := doc.Profiles[i]
			if err := finishProfile(&p); err != nil {
				return nil, fmt.Errorf("profile record %d: %w", i, err)
			}
			records = append(records, Record{Kind: KindProfile, Profile: &p})
		}
		for i := range doc.Knowledge {
			k := doc.Knowledge[i]
			if err := finishKnowledge(&k); err != nil {
				return nil, fmt.Errorf("knowledge record %d: %w", i, err)
			}
			records = append(records, Record{Kind: KindKnowledge, Knowledge: &k})
		}
		return records, nil
	}

	switch {
	case doc.Kind == string(KindProfile) || (doc.Kind == "" && doc.Name != ""):
		p := ProfileRecord{
			ID:         doc.ID,
			Name:       doc.Name,
			Role:       doc.Role,
			Department: doc.Department,
			Bio:        doc.Bio,
			Contact:    doc.Contact,
			SourceURL:  doc.SourceURL,
			Metadata:   doc.Metadata,
		}
		if err := finishProfile(&p); err != nil {
			return nil, fmt.Errorf("profile record: %w", err)
		}
		return []Record{{Kind: KindProfile, Profile: &p}}, nil

	case doc.Kind == string(KindKnowledge) || (doc.Kind == "" && (doc.Title != "" || doc.Body != "")):
		k := KnowledgeRecord{
			ID:        doc.ID,
			Title:     doc.Title,
			Body:      doc.Body,
			Category:  doc.Category,
			SourceURL: doc.SourceURL,
			Metadata:  doc.Metadata,
		}
		if err := finishKnowledge(&k); err != nil {
			return nil, fmt.Errorf("knowledge record: %w", err)
		}
		return []Record{{Kind: KindKnowledge, Knowledge: &k}}, nil

	case doc.Kind != "":
		return nil, fmt.Errorf("unknown record kind %q", doc.Kind)
	}

	return nil, fmt.Errorf("no records found (expected profiles/knowledge lists or a single record)")
}

func finishProfile(p *ProfileRecord) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.ID == "" {
		p.ID = deriveID(KindProfile, p.Name)
	}
	return nil
}

func finishKnowledge(k *KnowledgeRecord) error {
	if strings.TrimSpace(k.Title) == "" && strings.TrimSpace(k.Body) == "" {
		return fmt.Errorf("title or body is required")
	}
	if k.ID == "" {
		seed := k.Title
		if strings.TrimSpace(seed) == "" {
			seed = k.Body
		}
		k.ID = deriveID(KindKnowledge, seed)
	}
	return nil
}

// deriveID builds a name-based UUID (v5) so the same record always maps
// to the same id across reloads. Whitespace and case are normalized;
// records sharing a normalized name need explicit ids to stay distinct.
func deriveID(kind Kind, seed string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(seed), " "))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("orgmcp://"+string(kind)+"/"+norm)).String()
}
