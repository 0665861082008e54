// Package config loads service settings from an optional YAML file, a .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Tutortoise/catascan-service/classification"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Debug      bool             `mapstructure:"debug"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Model      ModelConfig      `mapstructure:"model"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	PublicURL      string        `mapstructure:"publicurl"`
	ReadTimeout    time.Duration `mapstructure:"readtimeout"`
	WriteTimeout   time.Duration `mapstructure:"writetimeout"`
	MaxUploadBytes int64         `mapstructure:"maxuploadbytes"`
	CORSOrigin     string        `mapstructure:"corsorigin"`
	// RateLimit caps POST /predict in requests per second; zero disables it.
	RateLimit float64 `mapstructure:"ratelimit"`
	RateBurst int     `mapstructure:"rateburst"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Name         string        `mapstructure:"name"`
	SSLMode      string        `mapstructure:"sslmode"`
	Path         string        `mapstructure:"path"`
	MaxOpenConns int           `mapstructure:"maxopenconns"`
	SlowQuery    time.Duration `mapstructure:"slowquery"`
}

type ModelConfig struct {
	Variant    string `mapstructure:"variant"`
	Backend    string `mapstructure:"backend"`
	Path       string `mapstructure:"path"`
	Library    string `mapstructure:"library"`
	InputName  string `mapstructure:"inputname"`
	OutputName string `mapstructure:"outputname"`
	PoolSize   int    `mapstructure:"poolsize"`
	Threads    int    `mapstructure:"threads"`
}

type PreprocessConfig struct {
	// Normalize enables the 1/255 rescale for variants that leave it off.
	Normalize bool `mapstructure:"normalize"`
}

type UploadConfig struct {
	Dir         string `mapstructure:"dir"`
	UniqueNames bool   `mapstructure:"uniquenames"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File switches output to a size rotated log file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxsizemb"`
	MaxBackups int    `mapstructure:"maxbackups"`
	MaxAgeDays int    `mapstructure:"maxagedays"`
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration. An explicit configFile must exist; otherwise
// config.yaml is looked up in the working directory and $HOME/.catascan.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".catascan"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Model.Backend = strings.ToLower(strings.TrimSpace(c.Model.Backend))
	c.Model.Variant = strings.ToLower(strings.TrimSpace(c.Model.Variant))
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of postgres, mysql, sqlite", c.Database.Driver))
	}
	switch c.Model.Backend {
	case BackendONNX, BackendTFLite:
	default:
		errs = append(errs, fmt.Errorf("model.backend %q is not one of onnx, tflite", c.Model.Backend))
	}
	if _, err := classification.LookupVariant(c.Model.Variant); err != nil {
		errs = append(errs, fmt.Errorf("model.variant: %w", err))
	}
	if c.Model.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("model.poolsize must be positive, got %d", c.Model.PoolSize))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.maxuploadbytes must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.ratelimit must not be negative, got %v", c.Server.RateLimit))
	}
	if c.Upload.Dir == "" {
		errs = append(errs, errors.New("upload.dir is required"))
	}

	return errors.Join(errs...)
}
