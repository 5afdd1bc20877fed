package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile is written at the top of every generated output tree. A
// directory without it is never removed or replaced.
const MarkerFile = ".verforge"

// Marker is the content of MarkerFile.
type Marker struct {
	Target       string    `json:"target"`
	Rank         int       `json:"rank"`
	GeneratedAt  time.Time `json:"generated_at"`
	Descriptor   string    `json:"descriptor,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Files        int       `json:"files"`
}

// ReadMarker loads the marker of a generated tree. It returns an error
// wrapping fs.ErrNotExist when dir has no marker.
func ReadMarker(dir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile)) //nolint:gosec // G304: dir is an output root owned by the binder
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid marker in %s: %w", dir, err)
	}
	return &m, nil
}

func writeMarker(dir string, m *Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerFile), append(data, '\n'), 0o600)
}

// checkReplaceable verifies that out either does not exist or is a tree
// previously generated for target.
func checkReplaceable(out, target string) (exists bool, err error) {
	info, err := os.Stat(out)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return true, fmt.Errorf("output path exists and is not a directory")
	}
	m, err := ReadMarker(out)
	if errors.Is(err, fs.ErrNotExist) {
		return true, fmt.Errorf("refusing to overwrite %s: not a generated tree (no %s marker)", out, MarkerFile)
	}
	if err != nil {
		return true, err
	}
	if m.Target != target {
		return true, fmt.Errorf("refusing to overwrite %s: generated for target %q", out, m.Target)
	}
	return true, nil
}
