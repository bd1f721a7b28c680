package reconcile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
)

// ExportFileName is "{tipo}_{YYYY-MM-DD}.csv".
func ExportFileName(tipo client.Tipo, day time.Time) string {
	return fmt.Sprintf("%s_%s.csv", tipo, day.Format("2006-01-02"))
}

// ArchiveFileName is "exportacao_{YYYY-MM-DD}.zip".
func ArchiveFileName(day time.Time) string {
	return fmt.Sprintf("exportacao_%s.zip", day.Format("2006-01-02"))
}

// Downloader saves response bodies into Dir. Each save writes a temporary
// file, closes it and renames it to the final name; the temporary file is
// removed on every failure, so no partial download is ever visible under
// the final name.
type Downloader struct {
	Dir string
}

// Save copies body to Dir/name and returns the final path.
func (d Downloader) Save(name string, body io.Reader) (path string, err error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, body); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	path = filepath.Join(dir, name)
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return path, nil
}
