package rbafs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/meigma/rbafs/internal/osfile"
)

// Config describes a mount layout.
//
//	archive_extension: .rba
//	mounts:
//	  - assets
//	archive_locations:
//	  - packs
type Config struct {
	// ArchiveExtension overrides the archive file extension.
	ArchiveExtension string `yaml:"archive_extension"`

	// Mounts are mounted in order with FileSystem.Mount.
	Mounts []string `yaml:"mounts"`

	// ArchiveLocations are added in order with FileSystem.AddArchiveLocation,
	// after Mounts.
	ArchiveLocations []string `yaml:"archive_locations"`

	// BaseDir resolves relative paths. LoadConfig sets it to the directory
	// holding the config file.
	BaseDir string `yaml:"-"`
}

// LoadConfig loads a mount layout from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := osfile.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	return cfg, nil
}

// ParseConfig decodes a mount layout. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the layout has no empty paths.
func (c *Config) Validate() error {
	for i, p := range c.Mounts {
		if p == "" {
			return fmt.Errorf("mounts[%d]: empty path", i)
		}
	}
	for i, p := range c.ArchiveLocations {
		if p == "" {
			return fmt.Errorf("archive_locations[%d]: empty path", i)
		}
	}
	return nil
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// NewFromConfig creates a FileSystem with the layout in cfg. A mount that
// fails aborts; archives that fail to mount inside an archive location are
// logged and skipped. Options are applied after the config's extension.
func NewFromConfig(cfg *Config, opts ...Option) (*FileSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	all := make([]Option, 0, len(opts)+1)
	if cfg.ArchiveExtension != "" {
		all = append(all, WithArchiveExtension(cfg.ArchiveExtension))
	}
	all = append(all, opts...)
	fsys := New(all...)

	for _, p := range cfg.Mounts {
		if err := fsys.Mount(cfg.resolve(p)); err != nil {
			_ = fsys.Close()
			return nil, err
		}
	}
	for _, p := range cfg.ArchiveLocations {
		if _, err := fsys.AddArchiveLocation(cfg.resolve(p)); err != nil {
			_ = fsys.Close()
			return nil, err
		}
	}
	return fsys, nil
}
