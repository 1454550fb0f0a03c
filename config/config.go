// Package config loads the tool configuration from an optional YAML file,
// with environment variable overrides.
package config

import (
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/OpenSCAP/oscap-anaconda-addon/ssg"
	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

// DefaultPath is where the configuration file is looked for.
const DefaultPath = "/etc/oscap-anaconda-addon.yaml"

type Config struct {
	// ContentDir is where the fetched content is kept during the
	// installation.
	ContentDir string `yaml:"content_dir"`

	// TargetDir is where the content ends up on the installed system.
	TargetDir string `yaml:"target_dir"`

	// SSGDir holds the data streams of the scap-security-guide package.
	SSGDir string `yaml:"ssg_dir"`

	// SSGProduct selects which shipped data stream to use, e.g. "fedora".
	SSGProduct string `yaml:"ssg_product"`

	// FetchRetry is the number of extra attempts for network fetches.
	FetchRetry int `yaml:"fetch_retry"`

	// Insecure disables server certificate validation.
	Insecure bool `yaml:"insecure"`
}

func Default() Config {
	return Config{
		ContentDir: utils.ContentDir(),
		TargetDir:  utils.TargetContentDir(),
		SSGDir:     ssg.DefaultDir,
		SSGProduct: "fedora",
		FetchRetry: 5,
	}
}

// Load reads the configuration file at path, if it exists, on top of the
// defaults and applies the environment overrides.
func Load(appFs afero.Fs, path string) (Config, error) {
	cfg := Default()

	exists, err := afero.Exists(appFs, path)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to stat %s: %w", path, err)
	}
	if exists {
		raw, err := afero.ReadFile(appFs, path)
		if err != nil {
			return Config{}, xerrors.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, xerrors.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.ContentDir = utils.LookupEnv("OSCAP_ADDON_CONTENT_DIR", cfg.ContentDir)
	cfg.TargetDir = utils.LookupEnv("OSCAP_ADDON_TARGET_DIR", cfg.TargetDir)
	cfg.SSGDir = utils.LookupEnv("OSCAP_ADDON_SSG_DIR", cfg.SSGDir)
	cfg.SSGProduct = utils.LookupEnv("OSCAP_ADDON_SSG_PRODUCT", cfg.SSGProduct)
	if retry := utils.LookupEnv("OSCAP_ADDON_FETCH_RETRY", ""); retry != "" {
		value, err := strconv.Atoi(retry)
		if err != nil {
			return Config{}, xerrors.Errorf("invalid OSCAP_ADDON_FETCH_RETRY value '%s': %w", retry, err)
		}
		cfg.FetchRetry = value
	}

	return cfg, nil
}

// SSGPath returns the path of the configured scap-security-guide data
// stream.
func (c Config) SSGPath() string {
	return ssg.DataStreamPath(c.SSGDir, c.SSGProduct)
}
