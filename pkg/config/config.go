// Package config loads metafiles configuration from embedded defaults
// layered with an optional metafiles.toml.
package config

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/meta"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// ConfigFileNames are searched, in order, in the working directory when no
// explicit config path is given.
var ConfigFileNames = []string{".metafiles.toml", "metafiles.toml"}

// Location describes one managed file collection: where its files live,
// which rule document governs them, and where derived artifacts go.
type Location struct {
	// Path is the data root; resolution paths are relative to it.
	Path string `koanf:"path"`
	// Metafile is the rule document, relative to Path unless absolute.
	Metafile string `koanf:"metafile"`
	// Database holds file records, Cache the published-metadata cache.
	Database string `koanf:"database"`
	Cache    string `koanf:"cache"`
	// Contents is the JSON export written alongside the cache.
	Contents string `koanf:"contents"`

	// URL components for published file links.
	URLProtocol  string `koanf:"url_protocol"`
	URLAuthority string `koanf:"url_authority"`
	URLPath      string `koanf:"url_path"`
}

// TransformConfig configures final-pass value normalization.
type TransformConfig struct {
	Joiners   map[string]string `koanf:"joiners"`
	Splitters map[string]string `koanf:"splitters"`
}

// Config is the root configuration.
type Config struct {
	// NAAN is the name assigning authority number used when minting ARKs.
	NAAN string `koanf:"naan"`

	Storage struct {
		// Location names the active entry in Locations.
		Location string `koanf:"location"`
	} `koanf:"storage"`

	Locations map[string]Location `koanf:"locations"`
	Transform TransformConfig     `koanf:"transform"`
}

// Load reads configuration: embedded defaults first, then the file at
// configPath if given, otherwise the first of ConfigFileNames that exists
// in the working directory. A missing optional file is not an error; a
// missing explicit path is.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultConfig), toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load default configuration")
	}

	path := configPath
	if path == "" {
		for _, name := range ConfigFileNames {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file not found: %s", path)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse %s", path)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "invalid configuration structure")
	}
	return &cfg, nil
}

// ActiveLocation returns the location named by storage.location.
func (c *Config) ActiveLocation() (Location, error) {
	name := c.Storage.Location
	loc, ok := c.Locations[name]
	if !ok {
		return Location{}, errors.Newf(errors.ErrConfigLoad, "location %q is not defined", name).
			WithDetail("location", name)
	}
	if loc.Path == "" {
		return Location{}, errors.Newf(errors.ErrConfigLoad, "location %q has no path", name)
	}
	return loc, nil
}

// MetafilePath resolves the rule document path against the data root.
func (l Location) MetafilePath() string {
	return l.resolve(l.Metafile, "metafile.xml")
}

// DatabasePath resolves the file-record database path against the data root.
func (l Location) DatabasePath() string {
	return l.resolve(l.Database, "metafiles.db")
}

// CachePath resolves the cache database path against the data root.
func (l Location) CachePath() string {
	return l.resolve(l.Cache, "cache.db")
}

// ContentsPath resolves the JSON contents export path against the data root.
func (l Location) ContentsPath() string {
	return l.resolve(l.Contents, "contents.json")
}

func (l Location) resolve(p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Path, p)
}

// TransformRules converts the configured joiners and splitters into the
// normalizer's rule set. Configured keys extend and override the built-in
// defaults; a key mapped to both acts as a splitter.
func (c *Config) TransformRules() meta.TransformRules {
	rules := meta.DefaultTransformRules()
	for key, sep := range c.Transform.Joiners {
		rules.Joiners[key] = sep
	}
	for key, sep := range c.Transform.Splitters {
		rules.Splitters[key] = sep
	}
	return rules
}
