// Package config assembles runtime settings from defaults, an optional YAML
// file and the environment. Command-line flags are applied by cmd on top.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/worker"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Session  session.Config `yaml:"session"`
	Detector worker.Options `yaml:"detector"`
	Capture  CaptureConfig  `yaml:"capture"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Debug    bool           `yaml:"debug"`
}

type CaptureConfig struct {
	Source   string `yaml:"source"` // device path or video file
	Format   string `yaml:"format"` // ffmpeg demuxer for devices, e.g. v4l2
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FPS      int    `yaml:"fps"`
	Realtime bool   `yaml:"realtime"`
	// Display size detections are mapped into; zero follows the frame size.
	DisplayWidth  int `yaml:"display_width"`
	DisplayHeight int `yaml:"display_height"`
}

// Input converts the capture settings into ffmpeg arguments.
func (c CaptureConfig) Input() utils.FFmpegInput {
	return utils.FFmpegInput{
		Source:   c.Source,
		Format:   c.Format,
		Width:    c.Width,
		Height:   c.Height,
		FPS:      c.FPS,
		Realtime: c.Realtime,
	}
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // PostgreSQL connection URL; built from POSTGRES_* when empty
}

func Default() *Config {
	return &Config{
		Session:  session.DefaultConfig(),
		Detector: worker.DefaultOptions(),
		Capture: CaptureConfig{
			Source: "/dev/video0",
			Format: "v4l2",
			Width:  640,
			Height: 480,
			FPS:    15,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// then with FACEGATE_* / POSTGRES_* environment variables. Unknown YAML keys
// are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = postgresURL()
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("FACEGATE_SOURCE", &c.Capture.Source)
	envString("FACEGATE_SOURCE_FORMAT", &c.Capture.Format)
	envString("FACEGATE_ADDR", &c.Server.Addr)
	envString("FACEGATE_PYTHON", &c.Detector.Python)
	envString("FACEGATE_DETECTOR_SCRIPT", &c.Detector.Script)
	envString("FACEGATE_DB", &c.Database.URL)

	if err := envFloat("FACEGATE_MATCH_THRESHOLD", &c.Session.MatchThreshold); err != nil {
		return err
	}
	if err := envDuration("FACEGATE_ENROLL_DURATION", &c.Session.EnrollDuration); err != nil {
		return err
	}
	if err := envDuration("FACEGATE_READY_TIMEOUT", &c.Session.ReadyTimeout); err != nil {
		return err
	}
	if v := os.Getenv("FACEGATE_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FACEGATE_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

// postgresURL builds the connection string from POSTGRES_* variables,
// falling back to a local default.
func postgresURL() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/facegate"
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
}
