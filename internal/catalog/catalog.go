package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"matinee.app/mcp-matinee/internal/domain"
)

var ErrDirectoryNotFound = errors.New("media directory does not exist")

// DefaultExtensions is the recognized set of media file extensions.
func DefaultExtensions() []string {
	return []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".mpg", ".mpeg"}
}

type Scanner struct {
	dir  string
	exts map[string]struct{}
}

func NewScanner(dir string, extensions []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Scanner{dir: dir, exts: exts}
}

func (s *Scanner) Dir() string {
	return s.dir
}

// Scan reads the media directory and returns recognized files sorted by name.
// The walk is non-recursive; subdirectories are skipped.
func (s *Scanner) Scan() ([]domain.MediaEntry, error) {
	items, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDirectoryNotFound
		}
		return nil, fmt.Errorf("read media directory: %w", err)
	}

	entries := make([]domain.MediaEntry, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		name := item.Name()
		ext := filepath.Ext(name)
		if _, ok := s.exts[strings.ToLower(ext)]; !ok {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, domain.MediaEntry{
			Name: name,
			Path: filepath.Join(s.dir, name),
			Size: info.Size(),
			Ext:  ext,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
