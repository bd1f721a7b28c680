package handler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
)

// MaxImportFileSize guards reads of files picked for import. The server
// applies its own limit.
var MaxImportFileSize int64 = 20 << 20

var ErrFileTooLarge = errors.New("file too large")

// importExts are the file types the import endpoint decodes.
var importExts = map[string]bool{
	".csv":  true,
	".txt":  true,
	".xlsx": true,
	".xlsm": true,
}

// IsImportFile reports whether name has an importable extension.
func IsImportFile(name string) bool {
	return importExts[strings.ToLower(filepath.Ext(name))]
}

// ImportFiles lists the importable files directly under dir, sorted by
// name. Hidden files and directories are skipped.
func ImportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var out []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !IsImportFile(entry.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// LoadFile reads path into a client.File named after its base name.
func LoadFile(path string) (client.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return client.File{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return client.File{}, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return client.File{}, fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	if info.Size() > MaxImportFileSize {
		return client.File{}, fmt.Errorf("%s: %w (%d bytes)", filepath.Base(path), ErrFileTooLarge, info.Size())
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxImportFileSize+1))
	if err != nil {
		return client.File{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if int64(len(data)) > MaxImportFileSize {
		return client.File{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrFileTooLarge)
	}
	return client.File{Name: filepath.Base(path), Data: data}, nil
}
