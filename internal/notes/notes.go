// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notes writes stage summaries into a note-repository directory.
// Note writing is a best-effort side channel: stages log failures and
// keep going, so a broken vault never aborts a pipeline run.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Writer persists rendered documents under a vault directory.
type Writer interface {
	// WriteDocument writes content to path (relative to the vault).
	WriteDocument(path, content string) error
}

// VaultWriter writes markdown documents into a directory tree, creating
// parent directories as needed.
type VaultWriter struct {
	dir string
}

// NewVaultWriter returns a writer rooted at dir.
func NewVaultWriter(dir string) *VaultWriter {
	return &VaultWriter{dir: dir}
}

// WriteDocument writes content to dir/path.
func (w *VaultWriter) WriteDocument(path, content string) error {
	full := filepath.Join(w.dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating note directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing note %s: %w", path, err)
	}
	return nil
}

// Frontmatter is the YAML header prepended to every stage note.
type Frontmatter struct {
	Project string    `yaml:"project"`
	Stage   string    `yaml:"stage"`
	Created time.Time `yaml:"created"`
	Tags    []string  `yaml:"tags,omitempty"`
}

// Document renders a markdown note with a YAML frontmatter block.
func Document(fm Frontmatter, title, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	if data, err := yaml.Marshal(fm); err == nil {
		b.Write(data)
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// Discard is a Writer that drops every document. Used when no vault is
// configured.
type Discard struct{}

// WriteDocument implements Writer.
func (Discard) WriteDocument(string, string) error { return nil }
