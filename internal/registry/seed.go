package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// SeedEntry is one declaration read from a seed list.
type SeedEntry struct {
	ID      string
	Enabled bool
	Line    int
}

// seedLine matches an optionally quoted id, an optional trailing comma and an
// optional trailing comment.
var seedLine = regexp.MustCompile(`^"?([A-Za-z0-9][A-Za-z0-9._+-]*)"?\s*,?\s*(?:(?://|#).*)?$`)

// ParseSeed reads the declarative version list format: one id per line, and
// commenting a line out with // or # disables that target without removing it
// from the order. Lines that do not hold a version-like token are skipped, so
// the body of a listOf("1.21.4", //"1.21.1") style list can be used verbatim.
func ParseSeed(r io.Reader) ([]SeedEntry, error) {
	var entries []SeedEntry
	seen := make(map[string]int)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		enabled := true
		switch {
		case strings.HasPrefix(line, "//"):
			enabled = false
			line = strings.TrimSpace(strings.TrimLeft(line, "/"))
		case strings.HasPrefix(line, "#"):
			enabled = false
			line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		}

		m := seedLine.FindStringSubmatch(line)
		if m == nil || !strings.ContainsAny(m[1], "0123456789") {
			continue
		}
		id := m[1]
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("line %d: %w (first declared on line %d)", lineNo, &DuplicateTargetError{ID: id}, prev)
		}
		seen[id] = lineNo
		entries = append(entries, SeedEntry{ID: id, Enabled: enabled, Line: lineNo})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed list: %w", err)
	}
	return entries, nil
}

// ParseSeedFile reads a seed list from disk.
func ParseSeedFile(path string) ([]SeedEntry, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from project configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	entries, err := ParseSeed(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
