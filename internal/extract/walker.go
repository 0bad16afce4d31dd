package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// defaultSkipDirs are directories never descended into during discovery.
var defaultSkipDirs = map[string]bool{
	".git":    true,
	".svn":    true,
	".cache":  true,
	".idea":   true,
	".vscode": true,
}

// DefaultPattern matches every PDF under the source root.
const DefaultPattern = "**/*.pdf"

// File is one discovered source file.
type File struct {
	// RelPath is the slash-separated path relative to the source root.
	RelPath string

	// AbsPath is the absolute filesystem path.
	AbsPath string
}

// DiscoverOptions configures source-tree discovery.
type DiscoverOptions struct {
	// Folders restricts discovery to the named top-level folders (schools).
	// Empty means the whole source root.
	Folders []string

	// Patterns are doublestar globs matched against RelPath. Empty means
	// DefaultPattern.
	Patterns []string
}

// Discover walks the source root and returns matching files sorted by
// relative path, so runs visit documents in a stable order.
func Discover(sourceDir string, opts DiscoverOptions, logger *zap.Logger) ([]File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absRoot, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving source dir: %w", err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("source dir %s: %w", sourceDir, err)
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	roots := []string{absRoot}
	if len(opts.Folders) > 0 {
		roots = roots[:0]
		for _, folder := range opts.Folders {
			root := filepath.Join(absRoot, folder)
			if _, err := os.Stat(root); err != nil {
				logger.Warn("folder not found, skipping", zap.String("folder", folder))
				continue
			}
			roots = append(roots, root)
		}
	}

	var files []File
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if defaultSkipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(absRoot, path)
			if err != nil {
				return fmt.Errorf("computing relative path: %w", err)
			}
			rel = filepath.ToSlash(rel)

			for _, pattern := range patterns {
				if ok, _ := doublestar.Match(pattern, rel); ok {
					files = append(files, File{RelPath: rel, AbsPath: path})
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	logger.Info("discovered source files",
		zap.String("source_dir", absRoot),
		zap.Int("count", len(files)),
	)
	return files, nil
}
