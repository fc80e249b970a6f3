package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ack modes for the notification queue consumer.
const (
	AckAlways = "always"
	AckRetry  = "retry"
)

type Config struct {
	Server ServerConfig

	MongoDB MongoConfig

	// MySQL only backs the dead-letter ledger
	MySQL MySQLConfig

	NATS NATSConfig

	Notification NotificationConfig

	Auth AuthConfig

	Telemetry TelemetryConfig
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host            string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ChatGRPCPort    string        `env:"CHAT_GRPC_PORT" envDefault:"7003"`
	NotifGRPCPort   string        `env:"NOTIF_GRPC_PORT" envDefault:"7004"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
}

type MongoConfig struct {
	URI            string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"collabhub"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	// Transactions requires a replica set.
	Transactions bool `env:"MONGO_TRANSACTIONS" envDefault:"false"`
}

type MySQLConfig struct {
	DSN          string `env:"MYSQL_DSN"`
	MaxOpenConns int    `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int    `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"5"`
}

// Enabled reports whether a ledger database was configured.
func (c MySQLConfig) Enabled() bool {
	return c.DSN != ""
}

type NATSConfig struct {
	URL           string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Stream        string `env:"NATS_STREAM" envDefault:"NOTIFICATIONS"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"notifications"`
	Consumer      string `env:"NATS_CONSUMER" envDefault:"notification-dispatcher"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	AckMode    string        `env:"NOTIFY_ACK_MODE" envDefault:"always"`
	MaxDeliver int           `env:"NOTIFY_MAX_DELIVER" envDefault:"5"`
	RetryDelay time.Duration `env:"NOTIFY_RETRY_DELAY" envDefault:"5s"`
	// how long a handler may run before the server redelivers the message
	AckWait time.Duration `env:"NOTIFY_ACK_WAIT" envDefault:"30s"`
	TTL     time.Duration `env:"NOTIFY_TTL" envDefault:"48h"`
	// unread notifications are always listed, read ones only inside this window
	VisibleWindow time.Duration `env:"NOTIFY_VISIBLE_WINDOW" envDefault:"24h"`
	BusBuffer     int           `env:"BUS_SUBSCRIBER_BUFFER" envDefault:"256"`

	// WorkerConsume lets notifs-svc attach to the durable consumer. Leave it off
	// while chat-svc runs, its embedded consumer is the one with live subscribers.
	WorkerConsume bool `env:"NOTIFY_WORKER_CONSUME" envDefault:"false"`
	// ReplayInterval re-enqueues unresolved dead letters periodically, 0 means only at startup.
	ReplayInterval time.Duration `env:"NOTIFY_REPLAY_INTERVAL" envDefault:"0s"`
	ReplayLimit    int           `env:"NOTIFY_REPLAY_LIMIT" envDefault:"100"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`
}

type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"collabhub"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.MongoDB.URI == "" {
		return errors.New("MONGO_URI is required")
	}
	switch cfg.Notification.AckMode {
	case AckAlways, AckRetry:
	default:
		return fmt.Errorf("unknown NOTIFY_ACK_MODE %q", cfg.Notification.AckMode)
	}
	if cfg.Notification.TTL <= 0 || cfg.Notification.VisibleWindow <= 0 {
		return errors.New("notification TTL and visible window must be positive")
	}
	if cfg.Notification.MaxDeliver < 1 {
		return errors.New("NOTIFY_MAX_DELIVER must be at least 1")
	}
	if cfg.Notification.AckWait <= 0 {
		return errors.New("NOTIFY_ACK_WAIT must be positive")
	}
	if cfg.Notification.ReplayInterval < 0 || cfg.Notification.ReplayLimit < 0 {
		return errors.New("NOTIFY_REPLAY_INTERVAL and NOTIFY_REPLAY_LIMIT must not be negative")
	}
	return nil
}

// HTTPAddr is the listen address of the HTTP API.
func (cfg *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
}
