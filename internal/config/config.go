// Package config manages configuration from defaults, an optional YAML
// file, environment variables, and flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "WIKICORD_"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "wikicord.yaml"

// Config holds runtime configuration for the exporter and the wikicord tool.
type Config struct {
	RootDir           string  `yaml:"root"`
	OutputDir         string  `yaml:"out"`
	AssetsDir         string  `yaml:"assets"`
	SiteTitle         string  `yaml:"title"`
	BaseURL           string  `yaml:"base_url"`
	APIEndpoint       string  `yaml:"api_endpoint"`
	DiscordToken      string  `yaml:"-"`
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	IncludeHidden     bool    `yaml:"hidden"`
	DarkModeFirst     bool    `yaml:"dark"`
	SearchIndex       bool    `yaml:"search_index"`
	Verbose           bool    `yaml:"verbose"`
}

// Default returns ready-to-use defaults prior to file/env/flag overrides.
func Default() Config {
	return Config{
		RootDir:           ".",
		OutputDir:         "dist",
		SiteTitle:         "wikicord",
		Workers:           runtime.NumCPU(),
		RequestsPerSecond: 1,
		DarkModeFirst:     true,
	}
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg. A missing file leaves
// cfg untouched.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.RootDir, "root", "r", cfg.RootDir, "root directory containing markdown notes")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "output directory for the generated site")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "directory of static assets replacing the embedded bundle")
	fs.StringVar(&cfg.SiteTitle, "title", cfg.SiteTitle, "site title used on exported pages")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "absolute base URL for canonical link tags")
	fs.BoolVar(&cfg.IncludeHidden, "hidden", cfg.IncludeHidden, "include hidden files when scanning notes")
	fs.BoolVar(&cfg.DarkModeFirst, "dark", cfg.DarkModeFirst, "enable dark theme by default")
	fs.BoolVar(&cfg.SearchIndex, "search-index", cfg.SearchIndex, "write a JSON search index alongside the site")
	fs.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "number of notes rendered in parallel")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging")
}

// RegisterClipFlags attaches the flags used when fetching Discord messages.
func RegisterClipFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.APIEndpoint, "api", cfg.APIEndpoint, "message lookup endpoint queried as GET <api>?url=<message url>")
	fs.Float64Var(&cfg.RequestsPerSecond, "rate", cfg.RequestsPerSecond, "maximum message lookups per second")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("ROOT", func(v string) { cfg.RootDir = v })
	applyStringEnv("OUT", func(v string) { cfg.OutputDir = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyStringEnv("TITLE", func(v string) { cfg.SiteTitle = v })
	applyStringEnv("BASE_URL", func(v string) { cfg.BaseURL = v })
	applyBoolEnv("HIDDEN", func(v bool) { cfg.IncludeHidden = v })
	applyBoolEnv("DARK", func(v bool) { cfg.DarkModeFirst = v })
	applyBoolEnv("SEARCH_INDEX", func(v bool) { cfg.SearchIndex = v })
	applyIntEnv("WORKERS", func(v int) { cfg.Workers = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
	applyStringEnv("API_ENDPOINT", func(v string) { cfg.APIEndpoint = v })
	applyStringEnv("DISCORD_TOKEN", func(v string) { cfg.DiscordToken = v })
	applyFloatEnv("RATE", func(v float64) { cfg.RequestsPerSecond = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyFloatEnv(key string, apply func(float64)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths.
func Finalize(cfg *Config) error {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	cfg.RootDir = root

	if cfg.OutputDir == "" {
		cfg.OutputDir = "dist"
	}
	if strings.TrimSpace(cfg.SiteTitle) == "" {
		cfg.SiteTitle = "wikicord"
	}
	if cfg.AssetsDir != "" {
		assets, err := filepath.Abs(cfg.AssetsDir)
		if err != nil {
			return fmt.Errorf("resolve assets directory: %w", err)
		}
		cfg.AssetsDir = assets
	}

	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("invalid workers: %d", cfg.Workers)
	}
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid request rate: %g", cfg.RequestsPerSecond)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.APIEndpoint = strings.TrimSpace(cfg.APIEndpoint); cfg.APIEndpoint != "" {
		u, err := url.Parse(cfg.APIEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid api endpoint: %q", cfg.APIEndpoint)
		}
	}
	return nil
}
