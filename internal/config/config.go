package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	"github.com/IvanTran-2001/Instagram-Logging/internal/cli"
)

type InstagramConfig struct {
	Username   string `mapstructure:"username" validate:"required"`
	Password   string `mapstructure:"password" validate:"required"`
	TOTPSecret string `mapstructure:"totp_secret"`
	Proxy      string `mapstructure:"proxy"`
}

type FriendConfig struct {
	Username string `mapstructure:"username" validate:"required"`
}

type FetchConfig struct {
	BatchSize       int           `mapstructure:"batch_size" validate:"required|min:1"`
	MaxBatches      int           `mapstructure:"max_batches" validate:"required|min:1"`
	FirstRunBatches int           `mapstructure:"first_run_batches" validate:"required|min:1"`
	FirstRunLimit   int           `mapstructure:"first_run_limit" validate:"required|min:1"`
	PageDelay       time.Duration `mapstructure:"page_delay"`
	FirstRunDelay   time.Duration `mapstructure:"first_run_delay"`
}

type MediaConfig struct {
	PhotoTimeout time.Duration `mapstructure:"photo_timeout" validate:"required"`
	VideoTimeout time.Duration `mapstructure:"video_timeout" validate:"required"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error"`
	Pretty bool   `mapstructure:"pretty"`
	Dir    string `mapstructure:"dir"`
}

type TranscriptConfig struct {
	SelfID       string            `mapstructure:"self_id"`
	DisplayNames map[string]string `mapstructure:"display_names"`
}

type Config struct {
	Instagram   InstagramConfig  `mapstructure:"instagram"`
	Friend      FriendConfig     `mapstructure:"friend"`
	DataDir     string           `mapstructure:"data_dir" validate:"required"`
	Timezone    string           `mapstructure:"timezone" validate:"required"`
	SessionFile string           `mapstructure:"session_file"`
	Fetch       FetchConfig      `mapstructure:"fetch"`
	Media       MediaConfig      `mapstructure:"media"`
	Logger      LoggerConfig     `mapstructure:"logger"`
	Transcript  TranscriptConfig `mapstructure:"transcript"`
}

// Environment variable names predate this rewrite, keep them stable so
// existing cron setups keep working.
var envBindings = map[string]string{
	"instagram.username":    "INSTAGRAM_USERNAME",
	"instagram.password":    "INSTAGRAM_PASSWORD",
	"instagram.totp_secret": "INSTAGRAM_TOTP_SECRET",
	"instagram.proxy":       "INSTAGRAM_PROXY",
	"friend.username":       "FRIEND_USERNAME",
	"data_dir":              "DM_DATA_DIR",
	"timezone":              "DM_TIMEZONE",
	"logger.level":          "DM_LOG_LEVEL",
	"logger.dir":            "DM_LOG_DIR",
}

// Load reads config.yaml and the environment, prompts for any missing
// credential when running interactively, and validates the result.
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	promptMissing(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOffline reads config.yaml and the environment without prompting or
// credential validation, for commands that never talk to Instagram.
func LoadOffline() (*Config, error) {
	return parse()
}

func parse() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("data_dir", "data")
	v.SetDefault("timezone", "Australia/Melbourne")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty", true)
	v.SetDefault("logger.dir", "logs")
	v.SetDefault("fetch.batch_size", 20)
	v.SetDefault("fetch.max_batches", 100)
	v.SetDefault("fetch.first_run_batches", 2500)
	v.SetDefault("fetch.first_run_limit", 50000)
	v.SetDefault("fetch.page_delay", time.Second)
	v.SetDefault("fetch.first_run_delay", 500*time.Millisecond)
	v.SetDefault("media.photo_timeout", 10*time.Second)
	v.SetDefault("media.video_timeout", 30*time.Second)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %v: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.SessionFile == "" {
		cfg.SessionFile = filepath.Join(cfg.DataDir, "session.json")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("loading timezone %v: %w", cfg.Timezone, err)
	}

	return &cfg, nil
}

// promptMissing fills credentials interactively. Prompt failures are left to
// validation so non-interactive runs report the missing variable instead.
func promptMissing(cfg *Config) {
	if cfg.Instagram.Username == "" {
		if name, err := cli.PromptLine("Instagram username"); err == nil {
			cfg.Instagram.Username = name
		}
	}
	if cfg.Instagram.Username != "" && cfg.Instagram.Password == "" {
		if pass, err := cli.PromptPassword("Instagram password"); err == nil {
			cfg.Instagram.Password = pass
		}
	}
	if cfg.Friend.Username == "" {
		if name, err := cli.PromptLine("Friend username"); err == nil {
			cfg.Friend.Username = name
		}
	}
}

func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return v.Errors
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
