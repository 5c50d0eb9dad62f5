package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	LogLevel   string `mapstructure:"log_level"`
	Stores     StoresConfig
	Timestamps TimestampsConfig
	MQTT       MQTTConfig `mapstructure:"mqtt"`
	Messaging  MessagingConfig
	Redis      RedisConfig
	Probing    ProbingConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoresConfig struct {
	Management StoreConfig `mapstructure:"management"`
	Telemetry  StoreConfig `mapstructure:"telemetry"`
}

//StoreConfig describes one document store. An empty DSN with the sqlite
//driver gives an in-memory database.
type StoreConfig struct {
	Driver            string `mapstructure:"driver"`
	DSN               string `mapstructure:"dsn"`
	Name              string `mapstructure:"name"`
	DevicesCollection string `mapstructure:"devices_collection"`
}

type TimestampsConfig struct {
	GatewayYear       int `mapstructure:"gateway_year"`
	GatewayHourOffset int `mapstructure:"gateway_hour_offset"`
	LabYear           int `mapstructure:"lab_year"`
}

//MQTTConfig enables the gateway subscriber when Broker is set
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

type MessagingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

//RedisConfig enables the measure frequency cache when Addr is set
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ProbingConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

//Load reads configuration from TELEMETRY_ prefixed environment variables and
//an optional config.yaml in paths
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("TELEMETRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8880)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("log_level", "info")

	v.SetDefault("stores.management.driver", "sqlite")
	v.SetDefault("stores.management.dsn", "")
	v.SetDefault("stores.management.name", "Cosecha")
	v.SetDefault("stores.management.devices_collection", "Devices")

	v.SetDefault("stores.telemetry.driver", "sqlite")
	v.SetDefault("stores.telemetry.dsn", "")
	v.SetDefault("stores.telemetry.name", "Biocarbon")
	v.SetDefault("stores.telemetry.devices_collection", "Dispositivos")

	v.SetDefault("timestamps.gateway_year", 2025)
	v.SetDefault("timestamps.gateway_hour_offset", 6)
	v.SetDefault("timestamps.lab_year", 2025)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "iot-telemetry-registry")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "reports")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("messaging.enabled", false)
	v.SetDefault("messaging.service_name", "iot-telemetry-registry")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "5m")

	v.SetDefault("probing.concurrency", 16)
}

func validateConfig(config *Config) error {
	for name, store := range map[string]StoreConfig{"management": config.Stores.Management, "telemetry": config.Stores.Telemetry} {
		switch store.Driver {
		case "sqlite":
		case "postgres":
			if store.DSN == "" {
				return fmt.Errorf("%s store: postgres requires a dsn", name)
			}
		default:
			return fmt.Errorf("%s store: unknown driver %q", name, store.Driver)
		}
		if store.Name == "" || store.DevicesCollection == "" {
			return fmt.Errorf("%s store: name and devices_collection are required", name)
		}
	}

	if config.Stores.Management.Name == config.Stores.Telemetry.Name {
		return fmt.Errorf("the management and telemetry stores must have different names")
	}

	if config.Timestamps.GatewayYear <= 0 || config.Timestamps.LabYear <= 0 {
		return fmt.Errorf("timestamp years must be positive")
	}

	if config.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}

	return nil
}
