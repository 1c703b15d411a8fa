package session

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/courseforge/backend/internal/domain"
)

var weekFilePattern = regexp.MustCompile(`Week_(\d+)`)

// ScanMaterials rebuilds the material listing for a session by walking its
// output directory. Used by recovery and by the materials endpoint, so a
// session whose store entry was lost can still present its artifacts.
func ScanMaterials(outputDir, sessionID string) []domain.MaterialRecord {
	sessionDir := filepath.Join(outputDir, sessionID)

	var materials []domain.MaterialRecord
	_ = filepath.WalkDir(sessionDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil //nolint:nilerr // a missing or unreadable entry just isn't listed
		}

		relPath, err := filepath.Rel(sessionDir, path)
		if err != nil {
			return nil
		}

		week := 0
		if m := weekFilePattern.FindStringSubmatch(d.Name()); m != nil {
			week, _ = strconv.Atoi(m[1])
		}

		rec := domain.MaterialRecord{
			Week:   week,
			Type:   domain.MaterialTypeForPath(relPath),
			Name:   d.Name(),
			Path:   relPath,
			Format: strings.TrimPrefix(strings.ToUpper(filepath.Ext(d.Name())), "."),
		}
		if info, err := d.Info(); err == nil {
			rec.Size = info.Size()
			rec.GeneratedAt = info.ModTime()
		} else {
			rec.GeneratedAt = time.Now()
		}
		materials = append(materials, rec)
		return nil
	})
	return materials
}
