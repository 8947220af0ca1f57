package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/vertextoedge/safefetch/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. SAFEFETCH_DOWNLOAD_TIMEOUT
const EnvPrefix = "SAFEFETCH"

// Config represents the entire application configuration
type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	FTP      FTPConfig      `mapstructure:"ftp"`
	SFTP     SFTPConfig     `mapstructure:"sftp"`
	S3       S3Config       `mapstructure:"s3"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// DownloadConfig contains transfer and staging settings
type DownloadConfig struct {
	BaseDir             string `mapstructure:"base_dir"`
	UserAgent           string `mapstructure:"user_agent"`
	Protocols           string `mapstructure:"protocols"`
	Timeout             string `mapstructure:"timeout"`
	ConnectTimeout      string `mapstructure:"connect_timeout"`
	RetryAttempts       int    `mapstructure:"retry_attempts"`
	RetryWait           string `mapstructure:"retry_wait"`
	RetryMaxWait        string `mapstructure:"retry_max_wait"`
	MaxRedirects        int    `mapstructure:"max_redirects"`
	AlwaysKeepPartBytes string `mapstructure:"always_keep_part_bytes"`
	MaxBytesPerSec      string `mapstructure:"max_bytes_per_sec"`
	ProgressInterval    string `mapstructure:"progress_interval"`
	Concurrency         int    `mapstructure:"concurrency"`
	SkipTLSVerify       bool   `mapstructure:"skip_tls_verify"`
	PartMaxAge          string `mapstructure:"part_max_age"`
}

// FTPConfig contains FTP(S) credentials
type FTPConfig struct {
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ExplicitTLS bool   `mapstructure:"explicit_tls"`
}

// SFTPConfig contains SSH settings
type SFTPConfig struct {
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	PrivateKey            string `mapstructure:"private_key"`
	KnownHosts            string `mapstructure:"known_hosts"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key"`
}

// S3Config contains S3 settings. Credentials come from the AWS default chain.
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains journal settings. An empty path disables the journal.
type DatabaseConfig struct {
	Path       string `mapstructure:"path"`
	HistoryAge string `mapstructure:"history_age"`
}

// Load loads configuration from the specified file path. An empty path uses
// defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.UnmarshalExact(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.base_dir", ".")
	v.SetDefault("download.user_agent", "safefetch")
	v.SetDefault("download.protocols", "http,https,ftp,ftps,sftp")
	v.SetDefault("download.timeout", "120s")
	v.SetDefault("download.connect_timeout", "30s")
	v.SetDefault("download.retry_attempts", 3)
	v.SetDefault("download.retry_wait", "2s")
	v.SetDefault("download.retry_max_wait", "30s")
	v.SetDefault("download.max_redirects", 5)
	v.SetDefault("download.always_keep_part_bytes", "64MiB")
	v.SetDefault("download.max_bytes_per_sec", "0")
	v.SetDefault("download.progress_interval", "10s")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.skip_tls_verify", false)
	v.SetDefault("download.part_max_age", "168h")
	v.SetDefault("ftp.username", "")
	v.SetDefault("ftp.password", "")
	v.SetDefault("ftp.explicit_tls", false)
	v.SetDefault("sftp.username", "")
	v.SetDefault("sftp.password", "")
	v.SetDefault("sftp.private_key", "")
	v.SetDefault("sftp.known_hosts", "")
	v.SetDefault("sftp.insecure_ignore_host_key", false)
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.use_path_style", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "~/.safefetch/journal.db")
	v.SetDefault("database.history_age", "720h")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	d := &c.Download
	if d.BaseDir == "" {
		return fmt.Errorf("download.base_dir is required")
	}
	if _, err := domain.ParseProtocols(d.Protocols); err != nil {
		return fmt.Errorf("invalid download.protocols: %w", err)
	}

	durations := map[string]string{
		"download.timeout":           d.Timeout,
		"download.connect_timeout":   d.ConnectTimeout,
		"download.retry_wait":        d.RetryWait,
		"download.retry_max_wait":    d.RetryMaxWait,
		"download.progress_interval": d.ProgressInterval,
		"download.part_max_age":      d.PartMaxAge,
		"database.history_age":       c.Database.HistoryAge,
	}
	for key, value := range durations {
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if dur < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	if d.RetryAttempts < 1 || d.RetryAttempts > 100 {
		return fmt.Errorf("download.retry_attempts must be between 1 and 100")
	}
	if d.MaxRedirects < 0 {
		return fmt.Errorf("download.max_redirects must not be negative")
	}
	if d.Concurrency < 1 || d.Concurrency > 64 {
		return fmt.Errorf("download.concurrency must be between 1 and 64")
	}
	if _, err := humanize.ParseBytes(d.AlwaysKeepPartBytes); err != nil {
		return fmt.Errorf("invalid download.always_keep_part_bytes: %w", err)
	}
	if _, err := humanize.ParseBytes(d.MaxBytesPerSec); err != nil {
		return fmt.Errorf("invalid download.max_bytes_per_sec: %w", err)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetProtocols returns the default allowed protocol set
func (c *DownloadConfig) GetProtocols() domain.ProtocolSet {
	s, _ := domain.ParseProtocols(c.Protocols)
	if s.IsEmpty() {
		return domain.DefaultProtocols
	}
	return s
}

// GetTimeout returns the per-attempt timeout as time.Duration
func (c *DownloadConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// GetConnectTimeout returns the connect timeout as time.Duration
func (c *DownloadConfig) GetConnectTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetRetryWait returns the first retry delay as time.Duration
func (c *DownloadConfig) GetRetryWait() time.Duration {
	d, _ := time.ParseDuration(c.RetryWait)
	return d
}

// GetRetryMaxWait returns the retry delay cap as time.Duration
func (c *DownloadConfig) GetRetryMaxWait() time.Duration {
	d, _ := time.ParseDuration(c.RetryMaxWait)
	return d
}

// GetProgressInterval returns the progress log interval as time.Duration
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressInterval)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

// GetPartMaxAge returns the age after which prune removes staging files
func (c *DownloadConfig) GetPartMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.PartMaxAge)
	if d == 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetAlwaysKeepPartBytes returns the keep threshold in bytes
func (c *DownloadConfig) GetAlwaysKeepPartBytes() int64 {
	n, _ := humanize.ParseBytes(c.AlwaysKeepPartBytes)
	return int64(n)
}

// GetMaxBytesPerSec returns the bandwidth limit in bytes, zero for unlimited
func (c *DownloadConfig) GetMaxBytesPerSec() int64 {
	n, _ := humanize.ParseBytes(c.MaxBytesPerSec)
	return int64(n)
}

// GetHistoryAge returns the age after which prune removes journal rows
func (c *DatabaseConfig) GetHistoryAge() time.Duration {
	d, _ := time.ParseDuration(c.HistoryAge)
	if d == 0 {
		return 30 * 24 * time.Hour
	}
	return d
}
