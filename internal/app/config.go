package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/lotsync/internal/cleanup"
	"github.com/raysh454/lotsync/internal/matcher"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/registry"
	"github.com/raysh454/lotsync/internal/source"
	"github.com/raysh454/lotsync/internal/webclient"
)

// Config is the runtime configuration. DefaultConfig is overlaid by an
// optional YAML file.
type Config struct {
	// StorageRoot holds lotsync.db and the image blobs.
	StorageRoot string `yaml:"storage_root"`
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`

	// PassTimeout bounds one reconcile invocation; 0 disables it.
	PassTimeout time.Duration `yaml:"pass_timeout"`
	// MaxParallel bounds RunAll; 0 means one dealership at a time.
	MaxParallel int `yaml:"max_parallel"`
	// JobRetentionTime is how long finished jobs stay queryable.
	JobRetentionTime time.Duration `yaml:"job_retention"`

	WebClient   webclient.Config     `yaml:"webclient"`
	Matcher     MatcherConfig        `yaml:"matcher"`
	Merge       MergeConfig          `yaml:"merge"`
	Cleanup     cleanup.Options      `yaml:"cleanup"`
	CrossSource matcher.ScoreWeights `yaml:"cross_source"`
	Images      ImagesConfig         `yaml:"images"`

	Dealerships []DealershipConfig `yaml:"dealerships"`
}

type MatcherConfig struct {
	PlaceholderPrefixes []string `yaml:"placeholder_prefixes"`
	MinVINLength        int      `yaml:"min_vin_length"`
}

type MergeConfig struct {
	DefaultInteriorColor string `yaml:"default_interior_color"`
}

type ImagesConfig struct {
	Enabled bool `yaml:"enabled"`
	// BaseURL prefixes hosted image URLs, e.g. http://localhost:8080/images.
	BaseURL string `yaml:"base_url"`
}

// DealershipConfig names a dealership and its sources. Secondary sources
// only enrich.
type DealershipConfig struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	WebsiteURL string        `yaml:"website_url"`
	Primary    source.Spec   `yaml:"primary"`
	Secondary  []source.Spec `yaml:"secondary"`
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	m := matcher.DefaultOptions()
	return &Config{
		StorageRoot:      "~/.config/lotsync",
		ListenAddr:       ":8080",
		LogLevel:         "info",
		PassTimeout:      30 * time.Minute,
		MaxParallel:      2,
		JobRetentionTime: time.Hour,
		WebClient:        webclient.DefaultConfig(),
		Matcher: MatcherConfig{
			PlaceholderPrefixes: m.PlaceholderPrefixes,
			MinVINLength:        m.MinVINLength,
		},
		Merge:       MergeConfig{DefaultInteriorColor: "Other"},
		Cleanup:     cleanup.DefaultOptions(),
		CrossSource: matcher.DefaultWeights(),
		Images: ImagesConfig{
			Enabled: true,
			BaseURL: "http://localhost:8080/images",
		},
	}
}

// LoadConfig reads path over DefaultConfig. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Relative static files are resolved against the config's directory.
	dir := filepath.Dir(path)
	for i := range cfg.Dealerships {
		d := &cfg.Dealerships[i]
		d.Primary.File = resolveFile(dir, d.Primary.File)
		for j := range d.Secondary {
			d.Secondary[j].File = resolveFile(dir, d.Secondary[j].File)
		}
	}
	return cfg, cfg.Validate()
}

func resolveFile(dir, f string) string {
	if f == "" || filepath.IsAbs(f) {
		return f
	}
	return filepath.Join(dir, f)
}

// Validate normalizes dealership ids and checks source roles.
func (c *Config) Validate() error {
	if c.Cleanup.MinCoverage < 0 || c.Cleanup.MinCoverage > 1 {
		return fmt.Errorf("cleanup.min_coverage must be within [0,1], got %v", c.Cleanup.MinCoverage)
	}
	if c.Cleanup.MaxDeleteFraction < 0 || c.Cleanup.MaxDeleteFraction > 1 {
		return fmt.Errorf("cleanup.max_delete_fraction must be within [0,1], got %v", c.Cleanup.MaxDeleteFraction)
	}

	seen := map[string]bool{}
	var errs []error
	for i := range c.Dealerships {
		d := &c.Dealerships[i]
		if d.ID == "" {
			d.ID = d.Name
		}
		d.ID = registry.NormalizeID(d.ID)
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("dealership #%d: id or name is required", i+1))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("dealership %s: duplicate id", d.ID))
		}
		seen[d.ID] = true

		if d.Primary.Source == "" {
			d.Primary.Source = model.SourceDealerSite
		}
		if d.Primary.Source.Secondary() {
			errs = append(errs, fmt.Errorf("dealership %s: primary source cannot be %s", d.ID, d.Primary.Source))
		}
		for j := range d.Secondary {
			if d.Secondary[j].Source == "" {
				d.Secondary[j].Source = model.SourceMarketplace
			}
			if !d.Secondary[j].Source.Secondary() {
				errs = append(errs, fmt.Errorf("dealership %s: secondary source %d is %s", d.ID, j+1, d.Secondary[j].Source))
			}
		}
	}
	return errors.Join(errs...)
}

// Dealership returns the configuration of id.
func (c *Config) Dealership(id string) (DealershipConfig, bool) {
	id = registry.NormalizeID(id)
	for _, d := range c.Dealerships {
		if d.ID == id {
			return d, true
		}
	}
	return DealershipConfig{}, false
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
