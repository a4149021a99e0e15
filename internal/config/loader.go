package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	appDirName        = "ragguard"
)

// legacyEnv maps the environment variable names used by earlier
// deployments onto config keys. Canonical SECTION_FIELD variables win.
var legacyEnv = map[string]string{
	"CYBORGDB_URL":       "index.base_url",
	"CYBORGDB_API_KEY":   "index.api_key",
	"CYBORGDB_INDEX_KEY": "index.index_key",
	"GROQ_API_KEY":       "llm.api_key",
}

// sections lists the top-level keys accepted from the environment.
var sections = map[string]bool{
	"server":        true,
	"index":         true,
	"qdrant":        true,
	"embeddings":    true,
	"llm":           true,
	"retrieval":     true,
	"ingest":        true,
	"bench":         true,
	"logging":       true,
	"observability": true,
}

// LoadOptions tunes Load. The zero value loads the default config file and
// a .env file from the working directory when either exists.
type LoadOptions struct {
	// ConfigPath is the YAML file to read. Empty means ~/.config/ragguard/config.yaml.
	ConfigPath string
	// DotenvPath is the dotenv file to read. Empty means ".env".
	DotenvPath string
	// SkipDotenv disables dotenv loading entirely.
	SkipDotenv bool
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables (including those supplied by a .env file).
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (INDEX_BASE_URL, LLM_API_KEY, etc.)
//  2. Legacy environment variables (CYBORGDB_URL, CYBORGDB_API_KEY, CYBORGDB_INDEX_KEY, GROQ_API_KEY)
//  3. YAML config file (~/.config/ragguard/config.yaml)
//  4. Hardcoded defaults
//
// # Security Considerations
//
// The YAML file must have 0600 or 0400 permissions, must be smaller than
// 1MB, and must live under ~/.config/ragguard/ or /etc/ragguard/.
//
// # Environment Variable Mapping
//
// Variables split on the first underscore into section and field:
//
//	INDEX_BASE_URL -> index.base_url
//	BENCH_REQUESTS_PER_QUERY -> bench.requests_per_query
//
// Load does not validate; callers run Validate (and ValidateLLM when they
// synthesize answers) so that each binary checks only what it needs.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	configPath := opts.ConfigPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", appDirName, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if err := loadFile(k, configPath); err != nil {
		return nil, err
	}

	if !opts.SkipDotenv {
		dotenvPath := opts.DotenvPath
		if dotenvPath == "" {
			dotenvPath = ".env"
		}
		// godotenv never overrides variables already present in the environment.
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load dotenv file %s: %w", dotenvPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy environment variables: %w", err)
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name. Variables outside
// the known sections are dropped.
func envKey(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !sections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// loadFile reads the YAML file at path into k. A missing file is not an error.
func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate through the open descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// EnsureConfigDir creates ~/.config/ragguard with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", appDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks that path resolves inside an allowed directory.
// It runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	allowedDirs := []string{
		filepath.Join(home, ".config", appDirName),
		filepath.Join("/etc", appDirName),
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/%s/ or /etc/%s/", appDirName, appDirName)
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
