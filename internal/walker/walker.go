// Package walker discovers ingestible documents on disk.
package walker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ziadkadry99/chaxai/internal/extract"
)

// DefaultMaxFileSize is the largest file Walk returns (50 MB).
const DefaultMaxFileSize int64 = 50 << 20

// FileInfo holds metadata about a single document found during traversal.
type FileInfo struct {
	Path    string // Absolute path on disk.
	RelPath string // Slash-separated path relative to the root directory.
	Size    int64
	Format  string // Lower-case extension, e.g. ".pdf".
}

// Config controls the behaviour of Walk.
type Config struct {
	RootDir     string
	Include     []string // Glob patterns; only matching files are included.
	Exclude     []string // Glob patterns; matching files are excluded.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
}

// Walk traverses the tree rooted at cfg.RootDir and returns every file with
// a supported document extension that passes filtering, sorted by RelPath.
// Default-excluded directories and .gitignore patterns are honoured.
func Walk(cfg Config) ([]FileInfo, error) {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	ignored := loadGitignore(filepath.Join(root, ".gitignore"))

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip entries we cannot read instead of aborting.
			return nil
		}
		if d.IsDir() {
			if path != root && shouldExcludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !extract.Supported(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matchesAny(rel, ignored) || !MatchesInclude(rel, cfg.Include) || MatchesExclude(rel, cfg.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			Format:  strings.ToLower(filepath.Ext(path)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Expand resolves command-line arguments to file paths. Directories are
// walked and glob patterns expanded, both with cfg's filters; plain files
// are kept as given, so unsupported files still surface as per-file failures.
// Duplicates are dropped; the first occurrence wins.
func Expand(args []string, cfg Config) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			c := cfg
			c.RootDir = arg
			files, err := Walk(c)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				add(f.Path)
			}
		case err == nil:
			add(arg)
		case os.IsNotExist(err) && hasMeta(arg):
			base, pattern := doublestar.SplitPattern(filepath.ToSlash(arg))
			matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("walker: bad pattern %q: %w", arg, err)
			}
			for _, m := range matches {
				if extract.Supported(m) && MatchesInclude(m, cfg.Include) && !MatchesExclude(m, cfg.Exclude) {
					add(filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m)))
				}
			}
		default:
			return nil, fmt.Errorf("walker: %s: %w", arg, err)
		}
	}
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// loadGitignore reads a .gitignore file and converts its patterns to
// doublestar globs relative to the root. Negations are not supported.
func loadGitignore(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		dirOnly := strings.HasSuffix(line, "/")
		line = strings.Trim(line, "/")
		if line == "" {
			continue
		}
		if !strings.Contains(line, "/") {
			line = "**/" + line
		}
		if dirOnly {
			patterns = append(patterns, line+"/**")
			continue
		}
		patterns = append(patterns, line, line+"/**")
	}
	return patterns
}
