package config

import (
	"fmt"

	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/registry"
)

// Registry builds the frozen target registry. Targets from versions_file are
// declared first, in file order, followed by the versions list.
func (c *Config) Registry() (*registry.Registry, error) {
	b := registry.NewBuilder(registry.WithOrdering(registry.Ordering(c.Ordering)))

	if c.VersionsFile != "" {
		entries, err := registry.ParseSeedFile(c.VersionsFile)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if err := b.Register(e.ID, e.Enabled); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", c.VersionsFile, e.Line, err)
			}
		}
	}

	for i, v := range c.Versions {
		if v.ID == "" {
			return nil, fmt.Errorf("versions[%d]: id is required", i)
		}
		if err := b.Register(v.ID, v.IsEnabled(), v.Dependencies...); err != nil {
			return nil, fmt.Errorf("versions[%d]: %w", i, err)
		}
	}

	return b.Freeze()
}

// Mapper builds the coordinate mapper from the plugins section.
func (c *Config) Mapper() (*coords.Mapper, error) {
	m, err := coords.New(c.Plugins.Rules, c.Plugins.Repositories)
	if err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}
	return m, nil
}
