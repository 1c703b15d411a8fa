package session

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteArchive streams a zip bundle of the session's output directory to w.
func (m *Manager) WriteArchive(w io.Writer, sessionID string) error {
	sessionDir := filepath.Join(m.outputDir, sessionID)
	if _, err := os.Stat(sessionDir); err != nil {
		return fmt.Errorf("session output directory: %w", err)
	}

	zw := zip.NewWriter(w)
	err := filepath.WalkDir(sessionDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(sessionDir, path)
		if err != nil {
			return fmt.Errorf("relative archive path: %w", err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open material file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()

		entry, err := zw.Create(filepath.ToSlash(relPath))
		if err != nil {
			return fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			return fmt.Errorf("write archive entry: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("archive session %s: %w", sessionID, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
