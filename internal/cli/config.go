package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds the settings that govern how robohen locates and opens an
// archive. Fields map 1:1 onto archive.Options but stay JSON-tagged
// separately so the config file format doesn't leak archive package internals.
type Config struct {
	ArchivePath      string `json:"archive_path"` //nolint:tagliatelle // snake_case for config file
	MaxPartitionSize uint64 `json:"max_partition_size,omitempty"`
}

// ConfigSources records which config files contributed to a loaded Config,
// for diagnostics (e.g. a "robohen config" subcommand showing provenance).
type ConfigSources struct {
	Global  string
	Project string
}

// DefaultConfig returns the configuration used when no config file and no
// CLI override supplies a value.
func DefaultConfig() Config {
	return Config{
		ArchivePath: ".robohen",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".robohen.json"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("failed to read config file")
	errConfigInvalid      = errors.New("invalid config")
	errArchivePathEmpty   = errors.New("archive_path must not be empty")
)

// getGlobalConfigPath returns the path to the global user config file.
// Uses $XDG_CONFIG_HOME/robohen/config.json if set, otherwise
// ~/.config/robohen/config.json. Returns "" if no home directory can be
// determined.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "robohen", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "robohen", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "robohen", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config (~/.config/robohen/config.json or $XDG_CONFIG_HOME/robohen/config.json)
//  3. Project config file at default location (.robohen.json, if present)
//  4. Explicit config file via configPath (if non-empty)
//  5. CLI overrides: cliOverrides.ArchivePath when hasArchiveOverride is set
//     (Run sets it from --archive/-a), and cliOverrides.MaxPartitionSize when
//     non-zero (Run defines no flag for it).
func LoadConfig(
	workDir, configPath string, cliOverrides Config, hasArchiveOverride bool, env []string,
) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if hasArchiveOverride {
		cfg.ArchivePath = cliOverrides.ArchivePath
	}

	if cliOverrides.MaxPartitionSize != 0 {
		cfg.MaxPartitionSize = cliOverrides.MaxPartitionSize
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, ConfigSources{}, err
	}

	return cfg, sources, nil
}

// loadGlobalConfig loads the global user config file if it exists.
func loadGlobalConfig(env []string) (Config, string, error) {
	globalCfgPath := getGlobalConfigPath(env)
	if globalCfgPath == "" {
		return Config{}, "", nil
	}

	globalCfg, explicitEmpty, loaded, err := loadConfigFile(globalCfgPath, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["archive_path"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, globalCfgPath, errArchivePathEmpty)
	}

	return globalCfg, globalCfgPath, nil
}

// loadProjectConfig loads the project config file (.robohen.json) or an
// explicit config file named by configPath.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	fileCfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["archive_path"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, errArchivePathEmpty)
	}

	return fileCfg, cfgFile, nil
}

// loadConfigFile loads a config file. If mustExist is false, a missing file
// returns a zero Config with loaded=false instead of an error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, explicitEmpty, true, nil
}

// parseConfig standardizes JSONC (comments, trailing commas) to JSON via
// hujson before decoding, matching the on-disk format used by the rest of
// the ambient config stack.
func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["archive_path"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["archive_path"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.ArchivePath != "" {
		base.ArchivePath = overlay.ArchivePath
	}

	if overlay.MaxPartitionSize != 0 {
		base.MaxPartitionSize = overlay.MaxPartitionSize
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.ArchivePath == "" {
		return errArchivePathEmpty
	}

	return nil
}

// FormatConfig renders cfg as indented JSON, for a "robohen config" diagnostic command.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
