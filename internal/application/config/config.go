package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"appcrane/internal/domain/model"
)

// QueueTransport selects where command queues live.
type QueueTransport string

const (
	QueueTransportRedis  QueueTransport = "redis"
	QueueTransportMemory QueueTransport = "memory"
)

const (
	envPrefix = "APPCRANE"

	// defaultBasePath is the directory holding every app, store and backup.
	defaultBasePath = "/opt/appcrane"
	defaultLogLevel = "info"

	defaultDemoMaxApps          = 6
	defaultQueueTimeout         = 5 * time.Minute
	defaultMaxReconnectAttempts = 5
	defaultRepoSyncCron         = "*/30 * * * *"
	defaultLabelKey             = "appcrane.urn"
	defaultRedisAddr            = "localhost:6379"
	defaultDatabaseDriver       = "sqlite"
	defaultTimezone             = "UTC"

	appsFolder       = "apps"
	appDataFolder    = "app-data"
	userConfigFolder = "user-config"
	reposFolder      = "repos"
	backupsFolder    = "backups"
	dataFolder       = "data"
	databaseFile     = "appcrane.db"
)

// DatabaseConfig selects the app store database.
type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
}

type QueueConfig struct {
	Transport            QueueTransport `json:"transport"`
	Timeout              time.Duration  `json:"timeout"`
	MaxReconnectAttempts int            `json:"max_reconnect_attempts"`
}

// RepoConfig is one marketplace repository.
type RepoConfig struct {
	ID  string `json:"id" mapstructure:"id"`
	URL string `json:"url" mapstructure:"url"`
}

// Config holds the application configuration
type Config struct {
	// BasePath specifies the root directory for apps, app data, stores and backups.
	BasePath string `json:"base_path"`
	// RootFolderHost is BasePath as seen by the docker daemon. Defaults to BasePath.
	RootFolderHost string `json:"root_folder_host"`
	// LogLevel specifies the minimum log level to output (debug, info, warn, error).
	LogLevel     string `json:"log_level"`
	Architecture string `json:"architecture"`
	DemoMode     bool   `json:"demo_mode"`
	DemoMaxApps  int    `json:"demo_max_apps"`
	ForcePull    bool   `json:"force_pull"`
	// UID and GID own the app data directories. Negative values leave ownership alone.
	UID              int    `json:"uid"`
	GID              int    `json:"gid"`
	InternalIP       string `json:"internal_ip"`
	NetworkInterface string `json:"network_interface"`
	Timezone         string `json:"timezone"`
	// LabelKey is the container label carrying the app urn.
	LabelKey     string          `json:"label_key"`
	Database     DatabaseConfig  `json:"database"`
	Redis        RedisConfig     `json:"redis"`
	Queue        QueueConfig     `json:"queue"`
	Repos        []RepoConfig    `json:"repos"`
	RepoSyncCron string          `json:"repo_sync_cron"`
	Features     map[string]bool `json:"features"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_path", defaultBasePath)
	v.SetDefault("root_folder_host", "")
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("architecture", runtime.GOARCH)
	v.SetDefault("demo_mode", false)
	v.SetDefault("demo_max_apps", defaultDemoMaxApps)
	v.SetDefault("force_pull", false)
	v.SetDefault("uid", -1)
	v.SetDefault("gid", -1)
	v.SetDefault("internal_ip", "")
	v.SetDefault("network_interface", "")
	v.SetDefault("timezone", defaultTimezone)
	v.SetDefault("label_key", defaultLabelKey)
	v.SetDefault("database.driver", defaultDatabaseDriver)
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", defaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.transport", string(QueueTransportRedis))
	v.SetDefault("queue.timeout", defaultQueueTimeout)
	v.SetDefault("queue.max_reconnect_attempts", defaultMaxReconnectAttempts)
	v.SetDefault("repo_sync_cron", defaultRepoSyncCron)
}

// LoadConfig reads the JSON file at configPath, if it exists, and applies
// APPCRANE_ prefixed environment overrides (APPCRANE_REDIS_ADDR for redis.addr).
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		BasePath:         v.GetString("base_path"),
		RootFolderHost:   v.GetString("root_folder_host"),
		LogLevel:         v.GetString("log_level"),
		Architecture:     v.GetString("architecture"),
		DemoMode:         v.GetBool("demo_mode"),
		DemoMaxApps:      v.GetInt("demo_max_apps"),
		ForcePull:        v.GetBool("force_pull"),
		UID:              v.GetInt("uid"),
		GID:              v.GetInt("gid"),
		InternalIP:       v.GetString("internal_ip"),
		NetworkInterface: v.GetString("network_interface"),
		Timezone:         v.GetString("timezone"),
		LabelKey:         v.GetString("label_key"),
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Transport:            QueueTransport(v.GetString("queue.transport")),
			Timeout:              v.GetDuration("queue.timeout"),
			MaxReconnectAttempts: v.GetInt("queue.max_reconnect_attempts"),
		},
		RepoSyncCron: v.GetString("repo_sync_cron"),
	}
	if err := v.UnmarshalKey("repos", &cfg.Repos); err != nil {
		return nil, fmt.Errorf("failed to parse repos: %w", err)
	}
	if err := v.UnmarshalKey("features", &cfg.Features); err != nil {
		return nil, fmt.Errorf("failed to parse features: %w", err)
	}

	prepareConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// prepareConfig fills in values derived from other settings
func prepareConfig(cfg *Config) {
	if cfg.BasePath == "" {
		cfg.BasePath = defaultBasePath
	}
	if cfg.RootFolderHost == "" {
		cfg.RootFolderHost = cfg.BasePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.DemoMaxApps <= 0 {
		cfg.DemoMaxApps = defaultDemoMaxApps
	}
	if cfg.LabelKey == "" {
		cfg.LabelKey = defaultLabelKey
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaultDatabaseDriver
	}
	if cfg.Database.Driver == defaultDatabaseDriver && cfg.Database.DSN == "" {
		cfg.Database.DSN = cfg.buildPath(dataFolder, databaseFile)
	}
	if cfg.Queue.Transport == "" {
		cfg.Queue.Transport = QueueTransportRedis
	}
	if cfg.Queue.Timeout <= 0 {
		cfg.Queue.Timeout = defaultQueueTimeout
	}
	if cfg.Queue.MaxReconnectAttempts <= 0 {
		cfg.Queue.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.RepoSyncCron == "" {
		cfg.RepoSyncCron = defaultRepoSyncCron
	}
	cfg.Features = validateAndMergeFeatures(cfg.Features)
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q, must be postgres or sqlite", c.Database.Driver)
	}
	switch c.Queue.Transport {
	case QueueTransportRedis, QueueTransportMemory:
	default:
		return fmt.Errorf("unsupported queue transport %q, must be redis or memory", c.Queue.Transport)
	}
	for _, repo := range c.Repos {
		if repo.ID == "" || repo.URL == "" {
			return fmt.Errorf("every repo needs an id and a url")
		}
	}
	return nil
}

// validateAndMergeFeatures drops unknown features and fills in defaults
func validateAndMergeFeatures(configFeatures map[string]bool) map[string]bool {
	merged := make(map[string]bool, len(DefaultFeatureValues))
	for feature, defaultValue := range DefaultFeatureValues {
		if value, exists := configFeatures[feature]; exists {
			merged[feature] = value
		} else {
			merged[feature] = defaultValue
		}
	}
	return merged
}

// buildPath constructs a file path from base path and components
func (c *Config) buildPath(components ...string) string {
	parts := append([]string{c.BasePath}, components...)
	return filepath.Join(parts...)
}

func (c *Config) GetAppsPath() string {
	return c.buildPath(appsFolder)
}

func (c *Config) GetReposPath() string {
	return c.buildPath(reposFolder)
}

func (c *Config) GetBackupsPath() string {
	return c.buildPath(backupsFolder)
}

// InstalledAppDir is <base>/apps/<store>/<app>.
func (c *Config) InstalledAppDir(urn model.AppUrn) string {
	return c.buildPath(appsFolder, urn.StoreID(), urn.AppName())
}

// AppDataDir is <base>/app-data/<store>/<app>.
func (c *Config) AppDataDir(urn model.AppUrn) string {
	return c.buildPath(appDataFolder, urn.StoreID(), urn.AppName())
}

func (c *Config) AppDataHostDir(urn model.AppUrn) string {
	return filepath.Join(c.RootFolderHost, appDataFolder, urn.StoreID(), urn.AppName())
}

func (c *Config) UserConfigDir(urn model.AppUrn) string {
	return c.buildPath(userConfigFolder, urn.StoreID(), urn.AppName())
}

// RepoDir is the checkout of the marketplace repository storeID.
func (c *Config) RepoDir(storeID string) string {
	return c.buildPath(reposFolder, storeID)
}

// BackupDir holds the archives of one app.
func (c *Config) BackupDir(urn model.AppUrn) string {
	return c.buildPath(backupsFolder, urn.StoreID(), urn.AppName())
}
