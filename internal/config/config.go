package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MQTTConfig MQTT 配置（credential change events）
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// ReconcileConfig controls the reconciler and the source-change stream consumer.
type ReconcileConfig struct {
	LockTTL       time.Duration
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	ResyncOnStart bool
}

// Config secretariat-data（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	// Admin is the single static operator identity checked before the credential store.
	Admin struct {
		Username string
		Password string
	}
	Auth struct {
		Token string
	}
	Reconcile ReconcileConfig
	MQTT      MQTTConfig
	Webhook   struct {
		URL string
	}
	Crypto struct {
		FieldKey string // hex encoded AES key; empty = plaintext source columns
	}
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, secretariat-data falls back to memory repositories.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "secretariat")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Admin.Username = getEnv("ADMIN_USERNAME", "admin")
	cfg.Admin.Password = getEnv("ADMIN_PASSWORD", "ChangeMe123!")
	cfg.Auth.Token = getEnv("AUTH_TOKEN", "stub-access-token")

	cfg.Reconcile.LockTTL = time.Duration(parseInt(getEnv("RECONCILE_LOCK_TTL_SECONDS", "30"), 30)) * time.Second
	cfg.Reconcile.Stream = getEnv("RECONCILE_STREAM", "secretariat:source-changes")
	cfg.Reconcile.ConsumerGroup = getEnv("RECONCILE_CONSUMER_GROUP", "credential-reconciler")
	cfg.Reconcile.ConsumerName = getEnv("RECONCILE_CONSUMER_NAME", hostnameOr("secretariat-data"))
	cfg.Reconcile.BatchSize = int64(parseInt(getEnv("RECONCILE_BATCH_SIZE", "50"), 50))
	cfg.Reconcile.ResyncOnStart = getEnv("RECONCILE_RESYNC_ON_START", "false") == "true"

	// MQTT 配置（credential events，默认禁用）
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "secretariat-data")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "secretariat/credentials")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Webhook.URL = getEnv("WEBHOOK_URL", "")
	cfg.Crypto.FieldKey = getEnv("FIELD_KEY", "")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}
