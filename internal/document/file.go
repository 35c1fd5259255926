package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// IsAgendaFile reports whether path has an extension ParseFile understands.
func IsAgendaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".json":
		return true
	}
	return false
}

// ParseFile reads a local agenda. Markdown files go through ParseMarkdown and
// .json files are treated as saved Docs API responses.
func ParseFile(path string) ([]types.Block, error) {
	if !IsAgendaFile(path) {
		return nil, fmt.Errorf("unsupported agenda file %q", filepath.Base(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agenda: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseDocsJSON(content), nil
	}
	return ParseMarkdown(content), nil
}
