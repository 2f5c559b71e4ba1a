// Package scanner discovers the JavaScript files of a buggy and a repaired
// source tree and pairs them by relative path. It respects .gcmignore files
// with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Language string // Detected language from extension
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file
	MaxFileSize     int64    // Larger files are skipped; zero means no limit
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".gcmignore",
		MaxFileSize:    5 * 1024 * 1024,
		DefaultExcludes: []string{
			"node_modules",
			"bower_components",
			".git",
			".hg",
			".svn",
			"dist",
			"build",
			"coverage",
			"vendor",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively scans root and returns its JavaScript files sorted by
// path. Ignore files are read from root and from every directory below it;
// their patterns apply relative to root.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	patterns, err := s.loadIgnorePatterns(absRoot, "")
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || ignored(rel+"/", patterns) {
				return filepath.SkipDir
			}
			nested, err := s.loadIgnorePatterns(path, rel)
			if err == nil {
				patterns = append(patterns, nested...)
			}
			return nil
		}

		// Symlinks are not followed
		if !d.Type().IsRegular() || !IsJavaScript(rel) || ignored(rel, patterns) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if s.opts.MaxFileSize > 0 && fi.Size() > s.opts.MaxFileSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Language: DetectLanguage(filepath.Ext(rel)),
			Size:     fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// isDefaultExcluded checks if the name matches default exclusion patterns.
func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns loads the ignore file of dir. Patterns of a nested
// directory are rebased onto prefix so that they match root-relative paths.
func (s *Scanner) loadIgnorePatterns(dir, prefix string) ([]IgnorePattern, error) {
	if s.opts.IgnoreFileName == "" {
		return nil, nil
	}
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if prefix != "" {
			line = rebase(line, prefix)
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

func rebase(line, prefix string) string {
	neg := ""
	if strings.HasPrefix(line, "!") {
		neg, line = "!", line[1:]
	}
	line = strings.TrimPrefix(line, "/")
	if !strings.Contains(strings.TrimSuffix(line, "/"), "/") {
		line = "**/" + line
	}
	return neg + "/" + prefix + "/" + line
}

// Pair is a file present in at least one of the two trees. A side the file
// is missing from has an empty path.
type Pair struct {
	Path     string // Relative path shared by both sides
	Buggy    string // Full path in the buggy tree
	Repaired string // Full path in the repaired tree
}

// Complete reports whether the file exists on both sides.
func (p Pair) Complete() bool { return p.Buggy != "" && p.Repaired != "" }

// PairTrees scans both trees and pairs their files by relative path. Pairs
// are sorted by path.
func (s *Scanner) PairTrees(buggyRoot, repairedRoot string) ([]Pair, error) {
	buggy, err := s.Scan(buggyRoot)
	if err != nil {
		return nil, fmt.Errorf("buggy tree: %w", err)
	}
	repaired, err := s.Scan(repairedRoot)
	if err != nil {
		return nil, fmt.Errorf("repaired tree: %w", err)
	}

	byPath := make(map[string]*Pair, len(buggy))
	var out []*Pair
	for _, f := range buggy {
		p := &Pair{Path: f.Path, Buggy: f.FullPath}
		byPath[f.Path] = p
		out = append(out, p)
	}
	for _, f := range repaired {
		if p, ok := byPath[f.Path]; ok {
			p.Repaired = f.FullPath
			continue
		}
		p := &Pair{Path: f.Path, Repaired: f.FullPath}
		byPath[f.Path] = p
		out = append(out, p)
	}

	pairs := make([]Pair, len(out))
	for i, p := range out {
		pairs[i] = *p
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Path < pairs[j].Path })
	return pairs, nil
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
