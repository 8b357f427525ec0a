package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

func collectDocs(t *testing.T, c *Connector) []domain.RawDocument {
	t.Helper()
	docsCh, errsCh := c.Discover(context.Background())
	var docs []domain.RawDocument
	for doc := range docsCh {
		docs = append(docs, doc)
	}
	for err := range errsCh {
		t.Fatalf("unexpected discovery error: %v", err)
	}
	return docs
}

func TestConnector_Type(t *testing.T) {
	assert.Equal(t, "filesystem", New(nil, nil).Type())
}

func TestConnector_Validate(t *testing.T) {
	t.Run("accepts existing directory", func(t *testing.T) {
		connector := New([]string{t.TempDir()}, nil)
		assert.NoError(t, connector.Validate(context.Background()))
	})

	t.Run("rejects empty roots", func(t *testing.T) {
		connector := New(nil, nil)
		assert.ErrorIs(t, connector.Validate(context.Background()), domain.ErrInvalidInput)
	})

	t.Run("rejects missing directory", func(t *testing.T) {
		connector := New([]string{"/does/not/exist"}, nil)
		assert.Error(t, connector.Validate(context.Background()))
	})

	t.Run("rejects plain file", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "f.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		connector := New([]string{file}, nil)
		assert.ErrorIs(t, connector.Validate(context.Background()), domain.ErrInvalidInput)
	})
}

func TestConnector_Discover(t *testing.T) {
	t.Run("finds matching files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), []byte{0x00}, 0644))

		docs := collectDocs(t, New([]string{dir}, []string{"*.md", "*.txt"}))

		assert.Len(t, docs, 2)
	})

	t.Run("empty patterns match everything", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), []byte{0x00}, 0644))

		docs := collectDocs(t, New([]string{dir}, nil))

		assert.Len(t, docs, 2)
	})

	t.Run("recurses into subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		sub := filepath.Join(dir, "nested", "deep")
		require.NoError(t, os.MkdirAll(sub, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "a.md"), []byte("# A"), 0644))

		docs := collectDocs(t, New([]string{dir}, []string{"**/*.md"}))

		require.Len(t, docs, 1)
	})

	t.Run("skips hidden files and directories", func(t *testing.T) {
		dir := t.TempDir()
		hidden := filepath.Join(dir, ".git")
		require.NoError(t, os.MkdirAll(hidden, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(hidden, "config.txt"), []byte("x"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0644))

		docs := collectDocs(t, New([]string{dir}, []string{"*.txt"}))

		require.Len(t, docs, 1)
		assert.Equal(t, "visible.txt", filepath.Base(docs[0].Location))
	})

	t.Run("populates hash type and size", func(t *testing.T) {
		dir := t.TempDir()
		content := []byte("The XJ-900 motor.")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), content, 0644))

		docs := collectDocs(t, New([]string{dir}, nil))

		require.Len(t, docs, 1)
		doc := docs[0]
		digest := sha256.Sum256(content)
		assert.Equal(t, hex.EncodeToString(digest[:]), doc.ContentHash)
		assert.Equal(t, "md", doc.DeclaredType)
		assert.Equal(t, int64(len(content)), doc.SizeBytes)
		assert.Equal(t, doc.Data, content)
		assert.True(t, filepath.IsAbs(doc.Location))
		assert.False(t, doc.ModifiedAt.IsZero())
	})

	t.Run("walks multiple roots", func(t *testing.T) {
		dir1 := t.TempDir()
		dir2 := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir1, "a.txt"), []byte("a"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir2, "b.txt"), []byte("b"), 0644))

		docs := collectDocs(t, New([]string{dir1, dir2}, nil))

		assert.Len(t, docs, 2)
	})

	t.Run("cancellation stops discovery", func(t *testing.T) {
		dir := t.TempDir()
		for i := 0; i < 20; i++ {
			name := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
			require.NoError(t, os.WriteFile(name, []byte("x"), 0644))
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		docsCh, errsCh := New([]string{dir}, nil).Discover(ctx)
		var count int
		for range docsCh {
			count++
		}
		for range errsCh {
		}
		assert.Zero(t, count)
	})
}

func TestConnector_Watch(t *testing.T) {
	dir := t.TempDir()
	connector := New([]string{dir}, []string{"*.md"})
	defer connector.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docsCh, err := connector.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("# New"), 0644))

	select {
	case doc := <-docsCh:
		assert.Equal(t, "new.md", filepath.Base(doc.Location))
		assert.Equal(t, "md", doc.DeclaredType)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestDeclaredType(t *testing.T) {
	assert.Equal(t, "md", declaredType("/docs/a.md"))
	assert.Equal(t, "txt", declaredType("/docs/a.TXT"))
	assert.Equal(t, "txt", declaredType("/docs/README"))
}

func TestFactory_Create(t *testing.T) {
	factory := NewFactory([]string{"*.md"})

	connector, err := factory.Create([]string{"/tmp"}, nil)
	require.NoError(t, err)
	fsConn, ok := connector.(*Connector)
	require.True(t, ok)
	assert.Equal(t, []string{"*.md"}, fsConn.patterns)

	connector, err = factory.Create([]string{"/tmp"}, []string{"*.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"*.txt"}, connector.(*Connector).patterns)
}
