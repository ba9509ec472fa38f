package ocm

import (
	"github.com/i5heu/ouroboros-ocm/internal/config"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Paths holds data directories. Only Paths[0] is used.
	Paths         []string
	InMemory      bool
	MinimumFreeGB uint
	// Logger is used as is when set. Otherwise a stderr logger at LogLevel
	// is built.
	Logger   *logrus.Logger
	LogLevel string
	// Compression names the chunk codec: none, lzma, zstd or lz4.
	Compression          string
	CleanNames           bool
	DynamicInstantiation bool
}

func DefaultConfig() Config {
	return fromFile(config.Default())
}

// LoadConfig reads a YAML config file. Missing settings take their defaults.
func LoadConfig(path string) (Config, error) {
	c, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	return fromFile(c), nil
}

func fromFile(c config.Config) Config {
	return Config{
		Paths:                c.Paths,
		InMemory:             c.InMemory,
		MinimumFreeGB:        c.MinimumFreeGB,
		LogLevel:             c.LogLevel,
		Compression:          c.Compression,
		CleanNames:           *c.CleanNames,
		DynamicInstantiation: *c.DynamicInstantiation,
	}
}
