// Package discovery finds source files under an input root using glob
// patterns and ignore rules.
package discovery

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Default patterns for the three input sources.
var (
	DefaultAnnotationPatterns = []string{"**/*.xml"}
	DefaultDiagnosisPatterns  = []string{"**/*.csv"}
	DefaultImagePatterns      = []string{"**/*.dcm"}
	DefaultIgnorePatterns     = []string{".git/**", "**/.DS_Store"}
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Discovery matches files against include and ignore patterns. Matching is
// case-insensitive so "IMG.DCM" is found by "**/*.dcm".
type Discovery struct {
	patterns       []compiledPattern
	ignorePatterns []compiledPattern
}

// New compiles the include and ignore patterns.
func New(patterns, ignorePatterns []string) (*Discovery, error) {
	d := &Discovery{}

	var err error
	if d.patterns, err = compile(patterns); err != nil {
		return nil, err
	}
	if d.ignorePatterns, err = compile(ignorePatterns); err != nil {
		return nil, err
	}
	return d, nil
}

func compile(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		p := strings.ToLower(pattern)
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, compiledPattern{pattern: p, glob: g})
	}
	return out, nil
}

// Discover walks root and returns the matching files in lexical order.
// Only an unreadable root is an error; unreadable subdirectories are skipped.
func (d *Discovery) Discover(root string) ([]string, error) {
	files := []string{}

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = strings.ToLower(filepath.ToSlash(relPath))

		if entry.IsDir() {
			if relPath != "." && d.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.shouldIgnore(relPath) {
			return nil
		}
		if matchesAnyPattern(relPath, d.patterns) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Matches reports whether path, a file under root, would be discovered.
// The file does not need to exist, so removed files can be matched too.
func (d *Discovery) Matches(root, path string) bool {
	relPath, err := filepath.Rel(root, path)
	if err != nil || relPath == "." || strings.HasPrefix(relPath, "..") {
		return false
	}
	relPath = strings.ToLower(filepath.ToSlash(relPath))
	if d.shouldIgnore(relPath) {
		return false
	}
	// Files below an ignored directory are skipped by the walk as well
	for dir := filepath.ToSlash(filepath.Dir(relPath)); dir != "." && dir != "/"; dir = filepath.ToSlash(filepath.Dir(dir)) {
		if d.shouldIgnore(dir) {
			return false
		}
	}
	return matchesAnyPattern(relPath, d.patterns)
}

// shouldIgnore checks if a path matches any ignore pattern.
func (d *Discovery) shouldIgnore(relPath string) bool {
	// Always ignore the tool's own state directory
	if strings.HasPrefix(relPath, ".nodules/") || relPath == ".nodules" {
		return true
	}

	if matchesAnyPattern(relPath, d.ignorePatterns) {
		return true
	}

	// A directory "scans" should match pattern "scans/**"
	return matchesAnyPattern(relPath+"/**", d.ignorePatterns)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// A file at the root has no slash, so "**/*.xml" would not match
	// "a.xml". Retry those with the **/ prefix removed.
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if strings.HasPrefix(cp.pattern, "**/") {
				simplified := strings.TrimPrefix(cp.pattern, "**/")
				if simplifiedGlob, err := glob.Compile(simplified, '/'); err == nil {
					if simplifiedGlob.Match(path) {
						return true
					}
				}
			}
		}
	}

	return false
}
