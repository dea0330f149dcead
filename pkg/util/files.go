package util

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// VideoExtensions are the file types picked up by directory scans.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetExtension returns the lowercase file extension including the dot
func GetExtension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsVideoFile reports whether path has one of VideoExtensions
func IsVideoFile(path string) bool {
	return slices.Contains(VideoExtensions, GetExtension(path))
}

// ListVideos returns the video files directly inside dir, sorted by name
func ListVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !IsVideoFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
