package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath        = "config.yaml"
	defaultTokenPath         = "./youtube_token.json"
	defaultRedirectURI       = "http://localhost:8080/callback"
	defaultSpeechProvider    = "google"
	defaultSpeechConcurrency = 4
	defaultSpeechTimeout     = 30
	defaultSpeechRetries     = 3
	defaultWordsPerMinute    = 150
	defaultWidth             = 1920
	defaultHeight            = 1080
	defaultFPS               = 30
	defaultMaxSegmentChars   = 1000
	defaultRenderParallelism = 2
	defaultMuxParallelism    = 2
	defaultDurationTolerance = 0.5
	defaultCommandTimeout    = 300
	defaultCaptionFont       = "DejaVu Sans"
	defaultCaptionSize       = 64
	defaultLineChars         = 42
	defaultLinesPerPage      = 6
	defaultCategoryID        = "22"
	defaultPrivacyStatus     = "unlisted"
	defaultChunkSizeMB       = 8
	defaultUploadRetries     = 5
	defaultChunkTimeout      = 120
	defaultPollInterval      = 10
	defaultPollTimeout       = 900
	defaultArchiveDir        = "./output"
	defaultArchivePrefix     = "runs"
	defaultServerAddr        = ":8080"
	defaultLanguage          = "en"
)

type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleRedirectURI  string
	YouTubeTokenPath   string
	GCPProject         string

	Speech   SpeechConfig   `yaml:"speech"`
	Video    VideoConfig    `yaml:"video"`
	Captions CaptionsConfig `yaml:"captions"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Server   ServerConfig   `yaml:"server"`
}

type SpeechConfig struct {
	Provider          string  `yaml:"provider"` // "google" or "stub"
	BaseURL           string  `yaml:"base_url"`
	Language          string  `yaml:"language"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Timeout           int     `yaml:"timeout"`
	MaxRetries        int     `yaml:"max_retries"`
	WordsPerMinute    float64 `yaml:"words_per_minute"`
	Slow              bool    `yaml:"slow"`
}

type VideoConfig struct {
	WorkDir           string  `yaml:"work_dir"`
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	FPS               int     `yaml:"fps"`
	MaxSegmentChars   int     `yaml:"max_segment_chars"`
	RenderParallelism int     `yaml:"render_parallelism"`
	MuxParallelism    int     `yaml:"mux_parallelism"`
	DurationTolerance float64 `yaml:"duration_tolerance"`
	CommandTimeout    int     `yaml:"command_timeout"`
}

type CaptionsConfig struct {
	FontName     string `yaml:"font_name"`
	FontSize     int    `yaml:"font_size"`
	PrimaryColor string `yaml:"primary_color"`
	OutlineColor string `yaml:"outline_color"`
	OutlineSize  int    `yaml:"outline_size"`
	ShadowSize   int    `yaml:"shadow_size"`
	Bold         bool   `yaml:"bold"`
	LineChars    int    `yaml:"line_chars"`
	LinesPerPage int    `yaml:"lines_per_page"`
}

type YouTubeConfig struct {
	CategoryID    string `yaml:"category_id"`
	PrivacyStatus string `yaml:"privacy_status"`
	ChunkSizeMB   int    `yaml:"chunk_size_mb"`
	MaxRetries    int    `yaml:"max_retries"`
	ChunkTimeout  int    `yaml:"chunk_timeout"`
	PollInterval  int    `yaml:"poll_interval"`
	PollTimeout   int    `yaml:"poll_timeout"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env and config.yaml from the working directory, then fills
// missing OAuth credentials from Secret Manager when GOOGLE_CLOUD_PROJECT is
// set. A missing config.yaml is not an error.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),
		GoogleRedirectURI:  getEnvOrDefault("GOOGLE_REDIRECT_URI", defaultRedirectURI),
		YouTubeTokenPath:   getEnvOrDefault("YOUTUBE_TOKEN_PATH", defaultTokenPath),
		GCPProject:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}

	if err := loadYAMLConfig(cfg, defaultConfigPath); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if cfg.GCPProject != "" && cfg.missingCredentials() {
		secrets, err := NewSecretManager(ctx, cfg.GCPProject)
		if err != nil {
			slog.Warn("Secret Manager unavailable", "error", err)
			return cfg, nil
		}
		defer func() { _ = secrets.Close() }()
		loadSecrets(ctx, cfg, secrets)
	}

	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("No config.yaml found, using defaults")
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) missingCredentials() bool {
	return c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GoogleRefreshToken == ""
}

func applyDefaults(cfg *Config) {
	applySpeechDefaults(cfg)
	applyVideoDefaults(cfg)
	applyCaptionsDefaults(cfg)
	applyYouTubeDefaults(cfg)
	applyArchiveDefaults(cfg)
	applyServerDefaults(cfg)
}

func applySpeechDefaults(cfg *Config) {
	if cfg.Speech.Provider == "" {
		cfg.Speech.Provider = defaultSpeechProvider
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = defaultLanguage
	}
	if cfg.Speech.Concurrency == 0 {
		cfg.Speech.Concurrency = defaultSpeechConcurrency
	}
	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = defaultSpeechTimeout
	}
	if cfg.Speech.MaxRetries == 0 {
		cfg.Speech.MaxRetries = defaultSpeechRetries
	}
	if cfg.Speech.WordsPerMinute == 0 {
		cfg.Speech.WordsPerMinute = defaultWordsPerMinute
	}
}

func applyVideoDefaults(cfg *Config) {
	if cfg.Video.WorkDir == "" {
		cfg.Video.WorkDir = os.TempDir()
	}
	if cfg.Video.Width == 0 || cfg.Video.Height == 0 {
		cfg.Video.Width, cfg.Video.Height = defaultWidth, defaultHeight
	}
	if cfg.Video.FPS == 0 {
		cfg.Video.FPS = defaultFPS
	}
	if cfg.Video.MaxSegmentChars == 0 {
		cfg.Video.MaxSegmentChars = defaultMaxSegmentChars
	}
	if cfg.Video.RenderParallelism == 0 {
		cfg.Video.RenderParallelism = defaultRenderParallelism
	}
	if cfg.Video.MuxParallelism == 0 {
		cfg.Video.MuxParallelism = defaultMuxParallelism
	}
	if cfg.Video.DurationTolerance == 0 {
		cfg.Video.DurationTolerance = defaultDurationTolerance
	}
	if cfg.Video.CommandTimeout == 0 {
		cfg.Video.CommandTimeout = defaultCommandTimeout
	}
}

func applyCaptionsDefaults(cfg *Config) {
	if cfg.Captions.FontName == "" {
		cfg.Captions.FontName = defaultCaptionFont
	}
	if cfg.Captions.FontSize == 0 {
		cfg.Captions.FontSize = defaultCaptionSize
	}
	if cfg.Captions.LineChars == 0 {
		cfg.Captions.LineChars = defaultLineChars
	}
	if cfg.Captions.LinesPerPage == 0 {
		cfg.Captions.LinesPerPage = defaultLinesPerPage
	}
}

func applyYouTubeDefaults(cfg *Config) {
	if cfg.YouTube.CategoryID == "" {
		cfg.YouTube.CategoryID = defaultCategoryID
	}
	if cfg.YouTube.PrivacyStatus == "" {
		cfg.YouTube.PrivacyStatus = defaultPrivacyStatus
	}
	if cfg.YouTube.ChunkSizeMB == 0 {
		cfg.YouTube.ChunkSizeMB = defaultChunkSizeMB
	}
	if cfg.YouTube.MaxRetries == 0 {
		cfg.YouTube.MaxRetries = defaultUploadRetries
	}
	if cfg.YouTube.ChunkTimeout == 0 {
		cfg.YouTube.ChunkTimeout = defaultChunkTimeout
	}
	if cfg.YouTube.PollInterval == 0 {
		cfg.YouTube.PollInterval = defaultPollInterval
	}
	if cfg.YouTube.PollTimeout == 0 {
		cfg.YouTube.PollTimeout = defaultPollTimeout
	}
}

func applyArchiveDefaults(cfg *Config) {
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = defaultArchiveDir
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = defaultArchivePrefix
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
}

// Seconds converts a whole-second config value to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
