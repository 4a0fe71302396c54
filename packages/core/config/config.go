// Package config loads the docshots configuration: a JSON config file
// discovered in the working directory, a .env file, and DOCSHOTS_*
// environment overrides, in that precedence order (later wins).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config is the tool configuration.
type Config struct {
	SiteURL        string `json:"siteUrl,omitempty"`
	FixturesDir    string `json:"fixturesDir,omitempty"`
	ImageDir       string `json:"imageDir,omitempty"`
	CaptureCommand string `json:"captureCommand,omitempty"` // script interpreter
	CaptureScript  string `json:"captureScript,omitempty"`
	RegistryFile   string `json:"registryFile,omitempty"` // optional YAML registry overlay
	AdminEmail     string `json:"adminEmail,omitempty"`
	AdminAPIKey    string `json:"adminApiKey,omitempty"`
	ManifestPath   string `json:"manifestPath,omitempty"` // empty disables the manifest
	Verbose        *bool  `json:"verbose,omitempty"`
	NoColor        *bool  `json:"noColor,omitempty"`
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// DefaultConfig returns a config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		SiteURL:        "http://localhost:9991",
		FixturesDir:    "fixtures",
		ImageDir:       filepath.Join("static", "images", "integrations"),
		CaptureCommand: "node",
		CaptureScript:  filepath.Join("tools", "message-screenshot.js"),
	}
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".docshots.config.json",
	"docshots.config.json",
	".docshotsrc",
}

// Load loads configuration from the specified path, or searches the
// working directory, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	// Missing .env files are fine; explicit config files are not.
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	for _, filename := range ConfigFilenames {
		if _, err := os.Stat(filename); err == nil {
			return loadConfigFromFile(filename)
		}
	}

	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays DOCSHOTS_* environment variables.
func (c *Config) applyEnv() {
	setIfPresent := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	setIfPresent("DOCSHOTS_SITE_URL", &c.SiteURL)
	setIfPresent("DOCSHOTS_FIXTURES_DIR", &c.FixturesDir)
	setIfPresent("DOCSHOTS_IMAGE_DIR", &c.ImageDir)
	setIfPresent("DOCSHOTS_CAPTURE_COMMAND", &c.CaptureCommand)
	setIfPresent("DOCSHOTS_CAPTURE_SCRIPT", &c.CaptureScript)
	setIfPresent("DOCSHOTS_REGISTRY_FILE", &c.RegistryFile)
	setIfPresent("DOCSHOTS_ADMIN_EMAIL", &c.AdminEmail)
	setIfPresent("DOCSHOTS_ADMIN_API_KEY", &c.AdminAPIKey)
	setIfPresent("DOCSHOTS_MANIFEST", &c.ManifestPath)
}
