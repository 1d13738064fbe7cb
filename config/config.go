package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Alert    AlertConfig
}

type ServerConfig struct {
	AppEnv   string
	HTTPPort string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type DatabaseConfig struct {
	Driver          string // postgres | mysql | memory
	MySQLDSN        string
	Postgres        PostgresConfig
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	PaymentTopic string
	AlertTopic   string
	GroupID      string
}

type LedgerConfig struct {
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	IdempotencyTTL time.Duration
}

// AlertConfig replaces free-form notification preferences with typed options.
type AlertConfig struct {
	// LowStockThreshold overrides the level's reorder point as the low_stock
	// trigger when > 0. Set above the reorder point to get a separate
	// reorder_point alert.
	LowStockThreshold int64
	DefaultSnooze     time.Duration
	// Routing maps an alert type to the channels a notifier should use.
	Routing map[string][]string
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			HTTPPort: getEnv("HTTP_PORT", ":8080"),
			GRPCPort: getEnv("GRPC_PORT", ":8083"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			MySQLDSN: getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/omnipos_stock?parseTime=true"),
			Postgres: PostgresConfig{
				Host:     getEnv("POSTGRES_HOST", "localhost"),
				Port:     getEnv("POSTGRES_PORT", "5433"),
				User:     getEnv("POSTGRES_USER", "omnipos"),
				Password: getEnv("POSTGRES_PASSWORD", "omnipos"),
				DBName:   getEnv("POSTGRES_DB", "omnipos_stock"),
				SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			},
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("DB_CONN_MAX_IDLE_TIME", 60),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", "your-secret-key-change-this-in-prod"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvBool("KAFKA_ENABLED", true),
			Brokers:      getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			PaymentTopic: getEnv("KAFKA_TOPIC_PAYMENTS", "payments.events"),
			AlertTopic:   getEnv("KAFKA_TOPIC_STOCK_ALERTS", "stock.alerts"),
			GroupID:      getEnv("KAFKA_GROUP_STOCK", "stock-ledger"),
		},
		Ledger: LedgerConfig{
			ReservationTTL: getEnvDuration("LEDGER_RESERVATION_TTL", 15*time.Minute),
			SweepInterval:  getEnvDuration("LEDGER_SWEEP_INTERVAL", 60*time.Second),
			SweepBatchSize: getEnvInt("LEDGER_SWEEP_BATCH_SIZE", 500),
			MaxRetries:     getEnvInt("LEDGER_MAX_RETRIES", 5),
			BackoffBase:    getEnvDuration("LEDGER_BACKOFF_BASE", 10*time.Millisecond),
			BackoffMax:     getEnvDuration("LEDGER_BACKOFF_MAX", 200*time.Millisecond),
			IdempotencyTTL: getEnvDuration("LEDGER_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Alert: AlertConfig{
			LowStockThreshold: int64(getEnvInt("ALERT_LOW_STOCK_THRESHOLD", 0)),
			DefaultSnooze:     getEnvDuration("ALERT_DEFAULT_SNOOZE", 4*time.Hour),
			Routing:           getEnvRouting("ALERT_ROUTING", "out_of_stock=email,sms;low_stock=email;reorder_point=email;overstock=webhook"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvRouting parses "type=ch1,ch2;type2=ch3".
func getEnvRouting(key, fallback string) map[string][]string {
	return ParseRouting(getEnv(key, fallback))
}

func ParseRouting(value string) map[string][]string {
	routing := map[string][]string{}
	for _, entry := range strings.Split(value, ";") {
		name, channels, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" {
			continue
		}
		for _, ch := range strings.Split(channels, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				routing[name] = append(routing[name], ch)
			}
		}
	}
	return routing
}
