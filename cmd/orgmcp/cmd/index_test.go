package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/embed"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

func TestClearArtifacts_RemovesIndexFiles(t *testing.T) {
	tmpDir := t.TempDir()
	vectorPath := filepath.Join(tmpDir, store.VectorIndexFile)
	keywordPath := filepath.Join(tmpDir, store.KeywordIndexFile)
	dbPath := filepath.Join(tmpDir, "knowledge.db")

	for _, path := range []string{vectorPath, keywordPath, dbPath} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	err := clearArtifacts(tmpDir)

	require.NoError(t, err)
	assert.NoFileExists(t, vectorPath)
	assert.NoFileExists(t, keywordPath)
	assert.FileExists(t, dbPath, "database must survive --force")
}

func TestClearArtifacts_MissingFilesAreFine(t *testing.T) {
	err := clearArtifacts(t.TempDir())
	assert.NoError(t, err)
}

func TestEmbedderInfo_HashProvider(t *testing.T) {
	cfg := config.NewConfig()

	info := embedderInfo(cfg)

	assert.Equal(t, "hash", info.Backend)
	assert.Equal(t, embed.HashModelID, info.Model)
	assert.Equal(t, cfg.Embeddings.Dimension, info.Dimensions)
}

func TestEmbedderInfo_OpenAIProvider(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "openai"
	cfg.Embeddings.Model = "text-embedding-3-small"

	info := embedderInfo(cfg)

	assert.Equal(t, "openai", info.Backend)
	assert.Equal(t, "text-embedding-3-small", info.Model)
}

func TestResolveCorpusDir(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Corpus.Dir = "corpus"

	assert.Equal(t, filepath.Join("/proj", "corpus"), resolveCorpusDir(cfg, "/proj", ""))
	assert.Equal(t, "/elsewhere/records", resolveCorpusDir(cfg, "/proj", "/elsewhere/records"))

	cfg.Corpus.Dir = ""
	assert.Equal(t, "", resolveCorpusDir(cfg, "/proj", ""))
}
