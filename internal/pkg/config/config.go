package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	Production   bool   `mapstructure:"production"`
}

// DatabaseConfig selects and configures the station store
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxConns   int    `mapstructure:"max_conns"`
}

// RedisConfig holds the optional station cache configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AuthConfig holds JWT and admin login configuration.
// An empty JWTSecret disables authentication on the API.
type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	ExpirationHours   int    `mapstructure:"expiration_hours"`
	RefreshHours      int    `mapstructure:"refresh_hours"`
	AdminEmail        string `mapstructure:"admin_email"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// FFmpegConfig holds FFmpeg configuration
type FFmpegConfig struct {
	BinaryPath   string `mapstructure:"binary_path"`
	SegmentTime  int    `mapstructure:"segment_time"`
	PlaylistSize int    `mapstructure:"playlist_size"`
	OutputLines  int    `mapstructure:"output_lines"`
}

// StorageConfig holds HLS output configuration
type StorageConfig struct {
	HLSPath       string `mapstructure:"hls_path"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	LockFile      string `mapstructure:"lock_file"`
}

// SupervisorConfig tunes worker supervision
type SupervisorConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	KillWait       time.Duration `mapstructure:"kill_wait"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RestartBackoff time.Duration `mapstructure:"restart_backoff"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from .env, the config file and environment
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration using an explicit config file when path is set
func LoadFrom(path string) (*Config, error) {
	// FFMPEG_BINARY_PATH and friends are often provided through a .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/radiocast")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 60)
	v.SetDefault("server.production", false)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "/var/lib/radiocast/stations.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "radiocast")
	v.SetDefault("database.password", "radiocast")
	v.SetDefault("database.dbname", "radiocast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.expiration_hours", 24)
	v.SetDefault("auth.refresh_hours", 168)
	v.SetDefault("auth.admin_email", "admin@radiocast.local")
	v.SetDefault("auth.admin_password_hash", "")

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "/usr/bin/ffmpeg")
	v.SetDefault("ffmpeg.segment_time", 4)
	v.SetDefault("ffmpeg.playlist_size", 6)
	v.SetDefault("ffmpeg.output_lines", 200)

	// Storage defaults
	v.SetDefault("storage.hls_path", "/var/lib/radiocast/hls")
	v.SetDefault("storage.public_base_url", "http://localhost:8080/streams")
	v.SetDefault("storage.lock_file", "")

	// Supervisor defaults
	v.SetDefault("supervisor.tick_interval", time.Second)
	v.SetDefault("supervisor.kill_wait", 500*time.Millisecond)
	v.SetDefault("supervisor.max_retries", 3)
	v.SetDefault("supervisor.restart_backoff", 90*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Storage.HLSPath == "" {
		errs = append(errs, errors.New("storage.hls_path is required"))
	}
	if c.FFmpeg.BinaryPath == "" {
		errs = append(errs, errors.New("ffmpeg.binary_path is required"))
	}
	if c.Supervisor.TickInterval <= 0 {
		errs = append(errs, errors.New("supervisor.tick_interval must be positive"))
	}
	if c.Supervisor.KillWait <= 0 {
		errs = append(errs, errors.New("supervisor.kill_wait must be positive"))
	}
	if c.Supervisor.MaxRetries < 0 {
		errs = append(errs, errors.New("supervisor.max_retries must not be negative"))
	}
	if c.Supervisor.RestartBackoff < 0 {
		errs = append(errs, errors.New("supervisor.restart_backoff must not be negative"))
	}

	return errors.Join(errs...)
}

// LockPath returns the instance lock file guarding the HLS root
func (c *StorageConfig) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return strings.TrimRight(c.HLSPath, "/") + ".lock"
}

// DSN returns PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr returns Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns server address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
