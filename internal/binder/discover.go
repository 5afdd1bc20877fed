package binder

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/verforge/verforge/internal/directive"
)

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8 << 10

// SourceFile is a file of the shared tree.
type SourceFile struct {
	Rel      string // slash-separated path relative to the shared root
	Data     []byte
	Verbatim bool // copied without directive processing
}

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	// Include restricts discovery to matching files. Empty means all files.
	Include []string
	// Exclude drops matching files and directories.
	Exclude []string
	// Verbatim marks matching files as copied without processing, in
	// addition to files detected as binary.
	Verbatim []string
	// Skip lists directories that are never entered.
	Skip []string
}

// Discover walks root read-only and returns its files sorted by path.
//
// Patterns use doublestar syntax against the slash-separated relative path,
// so "**" spans any number of directories. A pattern without a slash also
// matches the base name at any depth.
func Discover(root string, opts DiscoverOptions) ([]SourceFile, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("shared root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("shared root %s is not a directory", root)
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, s := range opts.Skip {
		if abs, err := filepath.Abs(s); err == nil {
			skip[abs] = true
		}
	}

	var files []SourceFile
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skip[p] || matchAny(opts.Exclude, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || d.Name() == MarkerFile {
			return nil
		}
		if matchAny(opts.Exclude, rel) {
			return nil
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
			return nil
		}

		data, err := os.ReadFile(p) //nolint:gosec // G304: p comes from WalkDir within the shared root
		if err != nil {
			return err
		}
		files = append(files, SourceFile{
			Rel:      rel,
			Data:     data,
			Verbatim: isBinary(data) || matchAny(opts.Verbatim, rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// Prepare parses every file into a unit. Verbatim files become literal units.
// All malformed files are reported together, alongside the units that did
// parse so they can still be checked.
func Prepare(files []SourceFile, opts directive.Options) ([]*directive.Unit, error) {
	units := make([]*directive.Unit, 0, len(files))
	var errs []error
	for _, f := range files {
		if f.Verbatim {
			units = append(units, directive.Literal(f.Rel, f.Data))
			continue
		}
		u, err := directive.Parse(f.Data, f.Rel, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		units = append(units, u)
	}
	return units, errors.Join(errs...)
}

func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if match(p, rel) {
			return true
		}
	}
	return false
}

// Validate reports every malformed pattern.
func (o DiscoverOptions) Validate() error {
	var errs []error
	for _, group := range []struct {
		name     string
		patterns []string
	}{
		{"include", o.Include},
		{"exclude", o.Exclude},
		{"verbatim", o.Verbatim},
	} {
		for _, p := range group.patterns {
			if !doublestar.ValidatePattern(normalizePattern(p)) {
				errs = append(errs, fmt.Errorf("%s pattern %q: %w", group.name, p, doublestar.ErrBadPattern))
			}
		}
	}
	return errors.Join(errs...)
}

func normalizePattern(pattern string) string {
	return strings.TrimPrefix(filepath.ToSlash(pattern), "./")
}

func match(pattern, rel string) bool {
	pattern = normalizePattern(pattern)
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}
