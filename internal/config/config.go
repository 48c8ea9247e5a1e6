// Package config loads SpaceSaver's TOML configuration file, applies
// defaults, expands paths, and validates the result before the rest of
// the system starts.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths groups the filesystem locations SpaceSaver reads from and writes
// to.
type Paths struct {
	MediaDirs []string `toml:"media_dirs"`
	WorkDir   string   `toml:"workdir"`
	LogDir    string   `toml:"log_dir"`
}

// MediaRoot pairs a configured media directory with the category files
// under it are classified into.
type MediaRoot struct {
	Path     string
	Category string
}

// Encode groups per-category transcode parameters.
type Encode struct {
	TargetCodec         string `toml:"target_codec"`
	TVCRF               int    `toml:"tv_crf"`
	MovieCRF            int    `toml:"movie_crf"`
	TVResolutionCap     int    `toml:"tv_res_cap"`
	MovieResolutionCap  int    `toml:"movie_res_cap"`
	BitrateFloorTVBPS    int64 `toml:"bitrate_floor_tv_bps"`
	BitrateFloorMovieBPS int64 `toml:"bitrate_floor_movie_bps"`
	DurationToleranceS   float64 `toml:"duration_tolerance_s"`
	EncoderBinary       string `toml:"encoder_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary"`
}

// Workflow groups scanner and worker scheduling knobs.
type Workflow struct {
	RescanIntervalS int      `toml:"rescan_interval_s"`
	MediaExtensions []string `toml:"media_extensions"`
	WakeupFloorS    int      `toml:"wakeup_floor_s"`
}

// HTTP groups the thin HTTP adapter's listen configuration.
type HTTP struct {
	ListenAddr string `toml:"listen_addr"`
}

// Logging groups log output configuration.
type Logging struct {
	Level         string `toml:"level"`
	Format        string `toml:"format"`
	RetentionDays int    `toml:"retention_days"`
}

// Config is the root configuration structure loaded from TOML.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Encode   Encode   `toml:"encode"`
	Workflow Workflow `toml:"workflow"`
	HTTP     HTTP     `toml:"http"`
	Logging  Logging  `toml:"logging"`
}

// Default returns a Config populated with SpaceSaver's built-in defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaDirs: nil,
			WorkDir:   "~/.local/share/spacesaver/workdir",
			LogDir:    "~/.local/share/spacesaver/logs",
		},
		Encode: Encode{
			TargetCodec:          "hevc",
			TVCRF:                24,
			MovieCRF:             22,
			TVResolutionCap:      1080,
			MovieResolutionCap:   2160,
			BitrateFloorTVBPS:    0,
			BitrateFloorMovieBPS: 0,
			DurationToleranceS:   1.0,
			EncoderBinary:        "spacesaver-encode",
			FFprobeBinary:        "ffprobe",
		},
		Workflow: Workflow{
			RescanIntervalS: 600,
			MediaExtensions: []string{".mkv", ".mp4", ".m4v", ".avi"},
			WakeupFloorS:    60,
		},
		HTTP: HTTP{
			ListenAddr: "127.0.0.1:8765",
		},
		Logging: Logging{
			Level:         "info",
			Format:        "pretty",
			RetentionDays: 14,
		},
	}
}

// Load reads the TOML file at path (or the default location when path is
// empty), applying defaults for any unset field, then normalizes and
// validates the result.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}

	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, "", fmt.Errorf("config: read %s: %w", resolved, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("config: parse %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return ExpandPath(path)
	}
	return ExpandPath("~/.config/spacesaver/config.toml")
}

// ExpandPath resolves a leading "~" to the current user's home directory.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", path, err)
	}
	return abs, nil
}

func (c *Config) normalize() error {
	expanded, err := ExpandPath(c.Paths.WorkDir)
	if err != nil {
		return err
	}
	c.Paths.WorkDir = expanded

	expanded, err = ExpandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = expanded

	for i, dir := range c.Paths.MediaDirs {
		expanded, err := ExpandPath(dir)
		if err != nil {
			return err
		}
		c.Paths.MediaDirs[i] = expanded
	}
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Paths.WorkDir == "" {
		return fmt.Errorf("config: workdir is required")
	}
	for _, dir := range c.Paths.MediaDirs {
		if strings.HasPrefix(c.Paths.WorkDir, dir) || strings.HasPrefix(dir, c.Paths.WorkDir) {
			return fmt.Errorf("config: workdir %q must not overlap media root %q", c.Paths.WorkDir, dir)
		}
	}
	if c.Encode.TargetCodec == "" {
		return fmt.Errorf("config: encode.target_codec is required")
	}
	if c.Workflow.RescanIntervalS <= 0 {
		return fmt.Errorf("config: workflow.rescan_interval_s must be positive")
	}
	return nil
}

// EnsureDirectories creates the workdir and log dir if they do not exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes the embedded sample configuration file to path,
// refusing to overwrite an existing file.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create parent directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPACESAVER_MEDIA_DIRS"); v != "" {
		cfg.Paths.MediaDirs = strings.Split(v, ":")
	}
	if v := os.Getenv("SPACESAVER_WORKDIR"); v != "" {
		cfg.Paths.WorkDir = v
	}
	if v := os.Getenv("SPACESAVER_TV_CRF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Encode.TVCRF = n
		}
	}
	if v := os.Getenv("SPACESAVER_MOVIE_CRF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Encode.MovieCRF = n
		}
	}
	if v := os.Getenv("SPACESAVER_TV_RES_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Encode.TVResolutionCap = n
		}
	}
	if v := os.Getenv("SPACESAVER_MOVIE_RES_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Encode.MovieResolutionCap = n
		}
	}
	if v := os.Getenv("SPACESAVER_RESCAN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.RescanIntervalS = n
		}
	}
	if v := os.Getenv("SPACESAVER_BITRATE_FLOOR_TV"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Encode.BitrateFloorTVBPS = n
		}
	}
	if v := os.Getenv("SPACESAVER_BITRATE_FLOOR_MOVIE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Encode.BitrateFloorMovieBPS = n
		}
	}
}

// MediaRoots pairs each configured media directory with its category.
// Directories are classified by name: a path containing "tv" or "show"
// (case-insensitive) is a tv root, and every other path is a movie root.
func (c *Config) MediaRoots() []MediaRoot {
	roots := make([]MediaRoot, 0, len(c.Paths.MediaDirs))
	for _, dir := range c.Paths.MediaDirs {
		category := "movie"
		lower := strings.ToLower(dir)
		if strings.Contains(lower, "tv") || strings.Contains(lower, "show") {
			category = "tv"
		}
		roots = append(roots, MediaRoot{Path: dir, Category: category})
	}
	return roots
}
