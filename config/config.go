package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/eddielth/air-monitor/logger"
)

// Config represents the application configuration
type Config struct {
	MQTT         MQTTConfig             `mapstructure:"mqtt"`
	Transformers map[string]Transformer `mapstructure:"transformers"`
	Storage      StorageConfig          `mapstructure:"storage"`
	Logger       LoggerConfig           `mapstructure:"logger"`
	Engine       EngineConfig           `mapstructure:"engine"`
	HTTP         HTTPConfig             `mapstructure:"http"`
	Kafka        KafkaConfig            `mapstructure:"kafka"`
	GPIO         GPIOConfig             `mapstructure:"gpio"`
}

// MQTTConfig represents the MQTT connection configuration
type MQTTConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Broker       string   `mapstructure:"broker"`
	ClientID     string   `mapstructure:"client_id"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	Topics       []string `mapstructure:"topics"`
	CommandTopic string   `mapstructure:"command_topic"`
}

// Transformer represents a payload transformer script
type Transformer struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// StorageConfig represents the storage configuration
type StorageConfig struct {
	File     FileStorageConfig     `mapstructure:"file"`
	Database DatabaseStorageConfig `mapstructure:"database"`
}

// FileStorageConfig represents the JSON archive configuration
type FileStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DatabaseStorageConfig represents the database configuration.
// MySQL DSNs need parseTime=true.
type DatabaseStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // mysql, postgresql, pgx
	DSN     string `mapstructure:"dsn"`
}

// LoggerConfig represents the logging configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// EngineConfig controls the evaluation loop
type EngineConfig struct {
	HysteresisWindow   time.Duration `mapstructure:"hysteresis_window"`
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
}

// HTTPConfig represents the HTTP API configuration
type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// KafkaConfig represents the event publisher configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// GPIOConfig represents the fan relay wiring
type GPIOConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Pin       int  `mapstructure:"pin"`
	ActiveLow bool `mapstructure:"active_low"`
}

// ConfigChangeCallback is called with the new configuration after a change
type ConfigChangeCallback func(cfg *Config) error

var mu sync.Mutex

func setDefaults() {
	viper.SetDefault("mqtt.enabled", true)
	viper.SetDefault("mqtt.topics", []string{"devices/+/+"})
	viper.SetDefault("mqtt.command_topic", "actuators/fan/set")
	viper.SetDefault("storage.file.path", "./data/archive")
	viper.SetDefault("storage.database.type", "postgresql")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.max_size", 10)
	viper.SetDefault("logger.max_backups", 5)
	viper.SetDefault("logger.console", true)
	viper.SetDefault("engine.hysteresis_window", "30s")
	viper.SetDefault("engine.evaluation_interval", "5s")
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("http.allowed_origins", []string{"*"})
	viper.SetDefault("kafka.topic", "air-monitor.events")
	viper.SetDefault("gpio.pin", 17)
}

// LoadConfig loads the configuration file at configPath. Environment
// variables prefixed with AIR_ override file values (AIR_HTTP_ADDR).
func LoadConfig(configPath string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("air")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	return unmarshal()
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values the service cannot start without
func (c *Config) Validate() error {
	if c.Engine.HysteresisWindow < 0 {
		return fmt.Errorf("engine.hysteresis_window must not be negative")
	}
	if c.Engine.EvaluationInterval <= 0 {
		return fmt.Errorf("engine.evaluation_interval must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Storage.Database.Enabled && c.Storage.Database.DSN == "" {
		return fmt.Errorf("storage.database.dsn is required when the database is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// WatchConfig watches the configuration file and calls callback on change
func WatchConfig(configPath string, callback ConfigChangeCallback) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}

	viper.SetConfigFile(absPath)

	// editors often emit several writes per save
	var lastChangeTime time.Time
	debounceInterval := 2 * time.Second

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) {
			return
		}

		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			return
		}
		lastChangeTime = now

		logger.Info("config file changed: %s", e.Name)

		mu.Lock()
		newConfig, err := unmarshal()
		mu.Unlock()
		if err != nil {
			logger.Error("failed to parse updated config: %v", err)
			return
		}

		if err := callback(newConfig); err != nil {
			logger.Error("failed to apply new config: %v", err)
			return
		}

		logger.Info("config updated and applied")
	})
	viper.WatchConfig()

	return nil
}
