package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Device        DeviceConfig        `mapstructure:"device"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Core          CoreConfig          `mapstructure:"core"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Staging       StagingConfig       `mapstructure:"staging"`
	Schedules     []ScheduleConfig    `mapstructure:"schedules"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type AppConfig struct {
	Name           string `mapstructure:"name"`
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DeviceConfig struct {
	ID         string `mapstructure:"id"`
	User       string `mapstructure:"user"`
	SecretFile string `mapstructure:"secret_file"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type CoreConfig struct {
	StorageLimit   int64         `mapstructure:"storage_limit"`
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
	Stores         []StoreConfig `mapstructure:"stores"`
}

type StoreConfig struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Local directory
	Path string `mapstructure:"path"`

	// AWS S3 and MinIO
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

type BackupConfig struct {
	MaxPartSize int64             `mapstructure:"max_part_size"`
	Parallelism int               `mapstructure:"parallelism"`
	Compression CompressionConfig `mapstructure:"compression"`
	Checksum    string            `mapstructure:"checksum"`
	Encryption  EncryptionConfig  `mapstructure:"encryption"`
	RulesFile   string            `mapstructure:"rules_file"`
}

type CompressionConfig struct {
	Default            string   `mapstructure:"default"`
	DisabledExtensions []string `mapstructure:"disabled_extensions"`
}

type EncryptionConfig struct {
	Provider     string   `mapstructure:"provider"`
	IdentityFile string   `mapstructure:"identity_file"`
	Recipients   []string `mapstructure:"recipients"`
}

type StagingConfig struct {
	Directory       string        `mapstructure:"directory"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

type ScheduleConfig struct {
	Name       string `mapstructure:"name"`
	Definition string `mapstructure:"definition"`
	Cron       string `mapstructure:"cron"`
	RulesFile  string `mapstructure:"rules_file"`
	Enabled    bool   `mapstructure:"enabled"`
}

type MonitorConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Interval     time.Duration `mapstructure:"interval"`
}

type NotificationsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("stasis")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stasis")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("catalog.path", "stasis.db")
	v.SetDefault("core.reservation_ttl", "10m")
	v.SetDefault("backup.max_part_size", 64*1024*1024)
	v.SetDefault("backup.parallelism", 1)
	v.SetDefault("backup.compression.default", "gzip")
	v.SetDefault("backup.compression.disabled_extensions", []string{"7z", "gz", "jpg", "jpeg", "mp3", "mp4", "png", "zip", "zst"})
	v.SetDefault("backup.checksum", "sha256")
	v.SetDefault("backup.encryption.provider", "aes")
	v.SetDefault("staging.max_age", "24h")
	v.SetDefault("staging.cleanup_schedule", "0 0 3 * * *")
	v.SetDefault("monitor.initial_delay", "5s")
	v.SetDefault("monitor.interval", "1m")
}

func (c *Config) Validate() error {
	if _, err := uuid.Parse(c.Device.ID); err != nil {
		return fmt.Errorf("device.id must be a valid UUID: %w", err)
	}
	if _, err := uuid.Parse(c.Device.User); err != nil {
		return fmt.Errorf("device.user must be a valid UUID: %w", err)
	}

	switch c.Backup.Encryption.Provider {
	case "aes":
		if c.Device.SecretFile == "" {
			return fmt.Errorf("device.secret_file is required for aes encryption")
		}
	case "age":
		if c.Backup.Encryption.IdentityFile == "" && len(c.Backup.Encryption.Recipients) == 0 {
			return fmt.Errorf("backup.encryption requires an identity file or recipients for age encryption")
		}
	default:
		return fmt.Errorf("backup.encryption.provider: unsupported provider [%s]", c.Backup.Encryption.Provider)
	}

	if c.Backup.MaxPartSize <= 0 {
		return fmt.Errorf("backup.max_part_size must be positive")
	}
	if c.Backup.Parallelism < 1 {
		return fmt.Errorf("backup.parallelism must be at least 1")
	}

	if len(c.GetEnabledStores()) == 0 {
		return fmt.Errorf("at least one enabled core store is required")
	}

	for i, store := range c.Core.Stores {
		if store.Type == "" {
			return fmt.Errorf("core.stores[%d]: type is required", i)
		}
		switch store.Type {
		case "local":
			if store.Path == "" {
				return fmt.Errorf("core.stores[%d]: path is required", i)
			}
		case "s3", "minio":
			if store.Bucket == "" {
				return fmt.Errorf("core.stores[%d]: bucket is required", i)
			}
			if store.Type == "minio" && store.Endpoint == "" {
				return fmt.Errorf("core.stores[%d]: endpoint is required", i)
			}
		case "gdrive":
			if store.FolderID == "" {
				return fmt.Errorf("core.stores[%d]: folder_id is required", i)
			}
		default:
			return fmt.Errorf("core.stores[%d]: unsupported type [%s]", i, store.Type)
		}
	}

	for i, schedule := range c.Schedules {
		if schedule.Definition == "" {
			return fmt.Errorf("schedules[%d]: definition is required", i)
		}
		if _, err := uuid.Parse(schedule.Definition); err != nil {
			return fmt.Errorf("schedules[%d]: definition must be a valid UUID: %w", i, err)
		}
		if schedule.Enabled && schedule.Cron == "" {
			return fmt.Errorf("schedules[%d]: cron is required when enabled", i)
		}
	}

	if c.Notifications.Telegram.Enabled && c.Notifications.Telegram.BotToken == "" {
		return fmt.Errorf("notifications.telegram.bot_token is required when enabled")
	}

	return nil
}

func (c *Config) GetEnabledStores() []StoreConfig {
	var enabled []StoreConfig
	for _, store := range c.Core.Stores {
		if store.Enabled {
			enabled = append(enabled, store)
		}
	}
	return enabled
}

func (c *Config) GetEnabledSchedules() []ScheduleConfig {
	var enabled []ScheduleConfig
	for _, schedule := range c.Schedules {
		if schedule.Enabled {
			enabled = append(enabled, schedule)
		}
	}
	return enabled
}
