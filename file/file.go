// Package file finds saved transcripts for offline extraction.
package file

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// TranscriptExtensions are picked up when a directory is scanned.
var TranscriptExtensions = []string{"md", "txt", "log"}

// Source is one text to run the extractor over.
type Source struct {
	Name    string
	Content []byte
}

// RecursiveFiles lists regular files under root whose extension is in
// extensions (all files when extensions is empty). Hidden files and
// directories are skipped; unreadable entries are logged and skipped.
func RecursiveFiles(root string, extensions []string, log *zap.Logger) ([]string, error) {
	normalizedExts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalizedExts[ext] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}

		hidden := path != root && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() {
			return nil
		}

		if len(normalizedExts) == 0 || normalizedExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Collect resolves path into sources: "-" reads stdin, a file is read as is,
// a directory yields every transcript file beneath it.
func Collect(path string, stdin io.Reader, log *zap.Logger) ([]Source, error) {
	if path == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return []Source{{Name: "stdin", Content: content}}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []Source{{Name: path, Content: content}}, nil
	}

	paths, err := RecursiveFiles(path, TranscriptExtensions, log)
	if err != nil {
		return nil, fmt.Errorf("error finding files: %w", err)
	}
	log.Info("transcripts found", zap.String("dir", path), zap.Int("count", len(paths)))

	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			log.Warn("skipping unreadable file", zap.String("path", p), zap.Error(err))
			continue
		}
		sources = append(sources, Source{Name: p, Content: content})
	}
	return sources, nil
}
