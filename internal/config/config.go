// Package config loads cmd/repcrec's optional YAML configuration file,
// following the struct-tag-plus-yaml.Unmarshal convention cmd/warren uses
// for its resource manifests.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nyudb/repcrec/internal/rlog"
)

// Config is the optional file-based configuration of a run. cmd/repcrec
// uses InputFile and OutputFile as fallbacks for the input argument and
// --output. LogLevel and LogJSON are parsed but cmd/repcrec does not apply
// them: logging is set from the --log-level and --log-json flags only.
// Site/variable counts are deliberately not here: the variable placement
// rule is part of the domain model, not a deployment knob, and the CLI
// always wires the engine defaults.
type Config struct {
	LogLevel   rlog.Level `yaml:"logLevel"`
	LogJSON    bool       `yaml:"logJSON"`
	InputFile  string     `yaml:"inputFile"`
	OutputFile string     `yaml:"outputFile"`
}

// Default returns the configuration the CLI falls back to when no
// config file is given.
func Default() Config {
	return Config{
		LogLevel: rlog.InfoLevel,
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
