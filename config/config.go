package config

import (
	"fmt"
	"net/url"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	FabTrack FabTrackConfig `yaml:"fabtrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString собирает postgres DSN; sslmode по умолчанию disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	AssemblyImportedTopicName string `yaml:"assembly_imported_topic_name"`
	StageChangedTopicName     string `yaml:"stage_changed_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type FabTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	StorageDriver      string `yaml:"storage_driver"` // "postgres" | "memory"
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	ProgressTTLSeconds int    `yaml:"progress_ttl_seconds"`

	// 0 выключает лимит на запись
	WriteRateLimitPerMinute int `yaml:"write_rate_limit_per_minute"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" | "json"

	ImportBatchSize int `yaml:"import_batch_size"`

	// Users заводятся только для storage_driver: memory (локальный запуск без БД).
	Users []UserSeed `yaml:"users"`
}

type UserSeed struct {
	ID       int64  `yaml:"id"`
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Level    int    `yaml:"level"`
	Company  string `yaml:"company"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
