// Package config loads service configuration from defaults, an optional
// pokedex.yaml, POKEDEX_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pokedex/internal/blob"
	"pokedex/internal/core"
	"pokedex/internal/infra/persistence/document"
	"pokedex/internal/infra/persistence/sqlite"
	"pokedex/pkg/domain"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = "pokedex.yaml"
	// EnvPrefix prefixes every environment override, e.g. POKEDEX_HTTP_ADDR.
	EnvPrefix = "POKEDEX"

	configName = "pokedex"
	configType = "yaml"
)

// Config is the full service configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// HTTPConfig configures the listener and server timeouts.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	Driver      string   `mapstructure:"driver" yaml:"driver"`
	IDPolicy    string   `mapstructure:"id_policy" yaml:"id_policy"`
	LoadOnStart bool     `mapstructure:"load_on_start" yaml:"load_on_start"`
	Dir         string   `mapstructure:"dir" yaml:"dir"`
	Key         string   `mapstructure:"key" yaml:"key"`
	SQLitePath  string   `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string   `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	S3          S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the s3 driver. Credentials fall back to the default
// AWS chain when empty.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style" yaml:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token,omitempty"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     string(core.StorageFile),
			IDPolicy:   string(domain.IDPolicyMax),
			Dir:        ".",
			Key:        document.DefaultKey,
			SQLitePath: sqlite.DefaultPath,
			S3:         S3Config{Region: "us-east-1"},
		},
		Log: LogConfig{Level: "info", Encoding: "json"},
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":          "http.addr",
	"storage":       "storage.driver",
	"data-dir":      "storage.dir",
	"id-policy":     "storage.id_policy",
	"load-on-start": "storage.load_on_start",
	"log-level":     "log.level",
}

// New returns a viper instance carrying the defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.id_policy", d.Storage.IDPolicy)
	v.SetDefault("storage.load_on_start", d.Storage.LoadOnStart)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.key", d.Storage.Key)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.s3.bucket", d.Storage.S3.Bucket)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.prefix", d.Storage.S3.Prefix)
	v.SetDefault("storage.s3.endpoint", d.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.path_style", d.Storage.S3.PathStyle)
	v.SetDefault("storage.s3.access_key_id", d.Storage.S3.AccessKeyID)
	v.SetDefault("storage.s3.secret_access_key", d.Storage.S3.SecretAccessKey)
	v.SetDefault("storage.s3.session_token", d.Storage.S3.SessionToken)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
}

// BindFlags binds the known flags present in fs to their config keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file (an explicit path, or pokedex.yaml in the
// working directory when path is empty) into v and decodes the result.
// A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unusable values.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		problems = append(problems, "http.addr must not be empty")
	}
	for key, d := range map[string]time.Duration{
		"http.read_timeout":     c.HTTP.ReadTimeout,
		"http.write_timeout":    c.HTTP.WriteTimeout,
		"http.idle_timeout":     c.HTTP.IdleTimeout,
		"http.shutdown_timeout": c.HTTP.ShutdownTimeout,
	} {
		if d <= 0 {
			problems = append(problems, key+" must be positive")
		}
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageFile, core.StorageSQLite, core.StoragePostgres:
	case core.StorageS3:
		if c.Storage.S3.Bucket == "" {
			problems = append(problems, "storage.s3.bucket is required for the s3 driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	if !domain.IDPolicy(c.Storage.IDPolicy).Valid() {
		problems = append(problems, fmt.Sprintf("unknown storage.id_policy %q", c.Storage.IDPolicy))
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageOptions {
	s := c.Storage
	return core.StorageOptions{
		Driver:      core.StorageDriver(s.Driver),
		IDPolicy:    domain.IDPolicy(s.IDPolicy),
		LoadOnStart: s.LoadOnStart,
		Dir:         s.Dir,
		Key:         s.Key,
		SQLitePath:  s.SQLitePath,
		PostgresDSN: s.PostgresDSN,
		S3: blob.S3Config{
			Region:          s.S3.Region,
			Bucket:          s.S3.Bucket,
			Prefix:          s.S3.Prefix,
			Endpoint:        s.S3.Endpoint,
			AccessKeyID:     s.S3.AccessKeyID,
			SecretAccessKey: s.S3.SecretAccessKey,
			SessionToken:    s.S3.SessionToken,
			PathStyle:       s.S3.PathStyle,
		},
	}
}

// WriteDefaultIfMissing writes the default configuration to path unless a
// file already exists there. It reports whether a file was written.
func WriteDefaultIfMissing(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}
