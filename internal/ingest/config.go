package ingest

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// HTTPConfig configures the HTTP ingest transport.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RedisConfig configures the redis pub/sub ingest transport.
type RedisConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	RawChannel      string `yaml:"raw_channel"`
	VariableChannel string `yaml:"variable_channel"`
}

// MQTTConfig configures the MQTT ingest transport.
type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	RawTopic      string `yaml:"raw_topic"`
	VariableTopic string `yaml:"variable_topic"`
	QoS           int    `yaml:"qos"`
}

// Config defines which ingest transports run and how they connect.
type Config struct {
	HTTP  HTTPConfig  `yaml:"http"`
	Redis RedisConfig `yaml:"redis"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

// LoadConfig loads ingest config from yaml or env. The yaml file named
// by CORE_CONFIG overrides the env-derived defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Enabled: getenvBoolDefault("INGEST_HTTP_ENABLED", true),
		},
		Redis: RedisConfig{
			Enabled:         getenvBoolDefault("INGEST_REDIS_ENABLED", false),
			Addr:            getenvDefault("REDIS_ADDR", "localhost:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              getenvIntDefault("REDIS_DB", 0),
			RawChannel:      getenvDefault("INGEST_REDIS_RAW_CHANNEL", "hmi.raw"),
			VariableChannel: getenvDefault("INGEST_REDIS_VARIABLE_CHANNEL", "hmi.variables"),
		},
		MQTT: MQTTConfig{
			Enabled:       getenvBoolDefault("INGEST_MQTT_ENABLED", false),
			Broker:        getenvDefault("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:      getenvDefault("MQTT_CLIENT_ID", "hmi-core"),
			Username:      os.Getenv("MQTT_USERNAME"),
			Password:      os.Getenv("MQTT_PASSWORD"),
			RawTopic:      getenvDefault("INGEST_MQTT_RAW_TOPIC", "hmi/raw/#"),
			VariableTopic: getenvDefault("INGEST_MQTT_VARIABLE_TOPIC", "hmi/variables/#"),
			QoS:           getenvIntDefault("INGEST_MQTT_QOS", 1),
		},
	}

	if path := os.Getenv("CORE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
