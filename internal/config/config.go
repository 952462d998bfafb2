package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/scapd/internal/feed"
)

// Default search locations of the tools and the SSG content.
var (
	DefaultToolDirs = []string{"/usr/bin", "/usr/local/bin", "/opt/openscap/bin"}
	DefaultSSGDirs  = []string{
		"/usr/share/xml/scap/ssg/content",
		"/usr/local/share/xml/scap/ssg/content",
		"/opt/ssg/content",
	}
)

const (
	defaultJobs                 = 4
	defaultMetricsListenAddress = ":8081"
)

// Config is the daemon configuration.
type Config struct {
	// Jobs is the number of evaluations that can run at the same time.
	Jobs  int
	Tools ToolsConfig
	// SSGDir is the SCAP Security Guide content directory.
	SSGDir string
	// StandardScanInput is the content used by standard scans without explicit input.
	StandardScanInput string
	Feeds             FeedsConfig
	// MetricsListenAddress is where the daemon serves its health, metrics and actions endpoints.
	MetricsListenAddress string
}

// ToolsConfig has the paths of the evaluation tools, empty means not available.
type ToolsConfig struct {
	OSCAP       string
	OSCAPSSH    string
	OSCAPDocker string
	OSCAPVM     string
	OSCAPChroot string
}

// FeedsConfig is the CVE feeds configuration.
type FeedsConfig struct {
	FetchEnabled    bool
	BaseURL         string
	RecheckInterval time.Duration
	Dists           []int
}

// Default returns the configuration used when there is no config file.
func Default() Config {
	return Config{
		Jobs: defaultJobs,
		Feeds: FeedsConfig{
			FetchEnabled:    true,
			BaseURL:         feed.DefaultBaseURL,
			RecheckInterval: feed.DefaultRecheckInterval,
			Dists:           append([]int{}, feed.DefaultDists...),
		},
		MetricsListenAddress: defaultMetricsListenAddress,
	}
}

// YAMLRepository loads the daemon configuration from YAML files.
type YAMLRepository struct {
	fs fs.FS
}

// NewYAMLRepository creates a new YAML config repository.
func NewYAMLRepository(filesystem fs.FS) *YAMLRepository {
	return &YAMLRepository{fs: filesystem}
}

// GetConfig loads the configuration from a YAML file, missing settings use the defaults.
func (r *YAMLRepository) GetConfig(ctx context.Context, path string) (Config, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return Config{}, ctx.Err()
	}

	var cfg ConfigV1
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg.toModel(), nil
}

// LoadFile loads the config file at path, a missing file returns the defaults.
func LoadFile(ctx context.Context, path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config path: %w", err)
	}

	cfg, err := NewYAMLRepository(os.DirFS(filepath.Dir(abs))).GetConfig(ctx, filepath.Base(abs))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, err
	}

	return cfg, nil
}

// ConfigV1 represents the YAML structure of the daemon configuration.
type ConfigV1 struct {
	Jobs    *int      `yaml:"jobs"`
	Tools   ToolsV1   `yaml:"tools"`
	Content ContentV1 `yaml:"content"`
	Feeds   FeedsV1   `yaml:"feeds"`
	Metrics MetricsV1 `yaml:"metrics"`
}

// ToolsV1 represents the YAML structure of the tool paths.
type ToolsV1 struct {
	OSCAP       string `yaml:"oscap"`
	OSCAPSSH    string `yaml:"oscap_ssh"`
	OSCAPDocker string `yaml:"oscap_docker"`
	OSCAPVM     string `yaml:"oscap_vm"`
	OSCAPChroot string `yaml:"oscap_chroot"`
}

// ContentV1 represents the YAML structure of the content locations.
type ContentV1 struct {
	SSG               string `yaml:"ssg"`
	StandardScanInput string `yaml:"standard_scan_input"`
}

// FeedsV1 represents the YAML structure of the CVE feeds configuration.
type FeedsV1 struct {
	Enabled         *bool  `yaml:"enabled"`
	BaseURL         string `yaml:"base_url"`
	RecheckInterval string `yaml:"recheck_interval"`
	Dists           []int  `yaml:"dists"`
}

// MetricsV1 represents the YAML structure of the metrics server configuration.
type MetricsV1 struct {
	ListenAddress string `yaml:"listen_address"`
}

func (c ConfigV1) validate() error {
	if c.Jobs != nil && *c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive")
	}

	if c.Feeds.RecheckInterval != "" {
		d, err := time.ParseDuration(c.Feeds.RecheckInterval)
		if err != nil {
			return fmt.Errorf("invalid feeds recheck interval: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("feeds recheck interval can't be negative")
		}
	}

	for _, d := range c.Feeds.Dists {
		if d <= 0 {
			return fmt.Errorf("feed dists must be positive")
		}
	}

	return nil
}

func (c ConfigV1) toModel() Config {
	cfg := Default()
	if c.Jobs != nil {
		cfg.Jobs = *c.Jobs
	}
	cfg.Tools = ToolsConfig{
		OSCAP:       c.Tools.OSCAP,
		OSCAPSSH:    c.Tools.OSCAPSSH,
		OSCAPDocker: c.Tools.OSCAPDocker,
		OSCAPVM:     c.Tools.OSCAPVM,
		OSCAPChroot: c.Tools.OSCAPChroot,
	}
	cfg.SSGDir = c.Content.SSG
	cfg.StandardScanInput = c.Content.StandardScanInput

	if c.Feeds.Enabled != nil {
		cfg.Feeds.FetchEnabled = *c.Feeds.Enabled
	}
	if c.Feeds.BaseURL != "" {
		cfg.Feeds.BaseURL = c.Feeds.BaseURL
	}
	if c.Feeds.RecheckInterval != "" {
		cfg.Feeds.RecheckInterval, _ = time.ParseDuration(c.Feeds.RecheckInterval)
	}
	if len(c.Feeds.Dists) > 0 {
		cfg.Feeds.Dists = c.Feeds.Dists
	}
	if c.Metrics.ListenAddress != "" {
		cfg.MetricsListenAddress = c.Metrics.ListenAddress
	}

	return cfg
}

// Autodetector fills the missing tool and content paths.
type Autodetector struct {
	ToolDirs []string
	SSGDirs  []string
	// Exists returns true if the path exists, isDir selects directories or regular files.
	Exists func(path string, isDir bool) bool
}

// NewAutodetector returns an Autodetector that searches the default locations.
func NewAutodetector() Autodetector {
	return Autodetector{
		ToolDirs: DefaultToolDirs,
		SSGDirs:  DefaultSSGDirs,
		Exists:   exists,
	}
}

// Autodetect returns a copy of cfg with the empty tool and content paths autodetected.
func (a Autodetector) Autodetect(cfg Config) Config {
	tool := func(current string, names ...string) string {
		if current != "" {
			return current
		}
		for _, dir := range a.ToolDirs {
			for _, name := range names {
				p := filepath.Join(dir, name)
				if a.Exists(p, false) {
					return p
				}
			}
		}
		return ""
	}

	cfg.Tools.OSCAP = tool(cfg.Tools.OSCAP, "oscap", "oscap.exe")
	cfg.Tools.OSCAPSSH = tool(cfg.Tools.OSCAPSSH, "oscap-ssh")
	cfg.Tools.OSCAPDocker = tool(cfg.Tools.OSCAPDocker, "oscap-docker")
	cfg.Tools.OSCAPVM = tool(cfg.Tools.OSCAPVM, "oscap-vm")
	cfg.Tools.OSCAPChroot = tool(cfg.Tools.OSCAPChroot, "oscap-chroot")

	if cfg.SSGDir == "" {
		for _, dir := range a.SSGDirs {
			if a.Exists(dir, true) {
				cfg.SSGDir = dir
				break
			}
		}
	}

	return cfg
}

// SSGDatastreams returns the source datastream files (`*-ds.xml`) of the SSG content directory.
func SSGDatastreams(ssgDir string) ([]string, error) {
	if ssgDir == "" {
		return nil, fmt.Errorf("SSG content directory is not configured and couldn't be autodetected")
	}

	entries, err := os.ReadDir(ssgDir)
	if err != nil {
		return nil, fmt.Errorf("could not read SSG content directory: %w", err)
	}

	res := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "-ds.xml") {
			res = append(res, filepath.Join(ssgDir, e.Name()))
		}
	}
	sort.Strings(res)

	return res, nil
}

func exists(path string, isDir bool) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir() == isDir
}
