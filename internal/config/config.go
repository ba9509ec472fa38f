package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config mirrors the settings of an ocm handle as they appear in a YAML file.
type Config struct {
	Paths                []string `yaml:"paths"`
	InMemory             bool     `yaml:"inMemory"`
	MinimumFreeGB        uint     `yaml:"minimumFreeGB"`
	LogLevel             string   `yaml:"logLevel"`
	Compression          string   `yaml:"compression"`
	CleanNames           *bool    `yaml:"cleanNames"`
	DynamicInstantiation *bool    `yaml:"dynamicInstantiation"`
}

func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads a YAML config file and fills in defaults for missing values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var config Config
	err := yaml.UnmarshalStrict(data, &config)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Compression == "" {
		c.Compression = "lzma"
	}

	if c.CleanNames == nil {
		t := true
		c.CleanNames = &t
	}

	if c.DynamicInstantiation == nil {
		f := false
		c.DynamicInstantiation = &f
	}
}
