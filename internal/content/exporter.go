package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/courseforge/backend/internal/domain"
)

// FileExporter writes generated content items to the local filesystem as
// markdown or plain text. Rich formats (PDF, DOCX, PPTX) come from an
// external export service; this is the always-available default.
type FileExporter struct{}

// NewFileExporter creates a local filesystem exporter.
func NewFileExporter() *FileExporter {
	return &FileExporter{}
}

// Export writes the item to destPath, creating parent directories. The
// format tag selects the rendering: "md" gets a title heading, anything else
// is written verbatim.
func (e *FileExporter) Export(ctx context.Context, item domain.ContentItem, format string, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create material directory: %w", err)
	}

	body := item.Content
	if format == "md" {
		body = fmt.Sprintf("# %s\n\n%s\n", item.Title, item.Content)
	}

	if err := os.WriteFile(destPath, []byte(body), 0644); err != nil {
		return fmt.Errorf("write material file: %w", err)
	}
	return nil
}
