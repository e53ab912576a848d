// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDocumentCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewVaultWriter(dir)

	err := w.WriteDocument(filepath.Join("proj-1", "ideas.md"), "# Ideas\n")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "proj-1", "ideas.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Ideas\n", string(data))
}

func TestWriteDocumentOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewVaultWriter(dir)

	require.NoError(t, w.WriteDocument("note.md", "first"))
	require.NoError(t, w.WriteDocument("note.md", "second"))

	data, err := os.ReadFile(filepath.Join(dir, "note.md"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestDocumentRendersFrontmatter(t *testing.T) {
	fm := Frontmatter{
		Project: "proj-1",
		Stage:   "idea_generation",
		Created: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		Tags:    []string{"research", "ideas"},
	}
	doc := Document(fm, "Generated Ideas", "Seven ideas were generated.")

	assert.Contains(t, doc, "---\n")
	assert.Contains(t, doc, "project: proj-1")
	assert.Contains(t, doc, "stage: idea_generation")
	assert.Contains(t, doc, "- research")
	assert.Contains(t, doc, "# Generated Ideas\n")
	assert.Contains(t, doc, "Seven ideas were generated.\n")
}

func TestDiscardWriterNeverFails(t *testing.T) {
	var w Writer = Discard{}
	assert.NoError(t, w.WriteDocument("anything.md", "content"))
}
