package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	VAPID    VAPIDConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
}

// VAPIDConfig holds the web-push signing keys. The API server runs without
// them; the scheduler refuses to start if they are missing.
type VAPIDConfig struct {
	Subject    string
	PublicKey  string
	PrivateKey string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresCfg, err := newPostgresConfig()
	if err != nil {
		return nil, err
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	return &Config{
		Server:   serverCfg,
		Postgres: *postgresCfg,
		Redis:    redisCfg,
		Auth:     AuthConfig{JWTSecret: jwtSecret},
		VAPID: VAPIDConfig{
			Subject:    os.Getenv("VAPID_SUBJECT"),
			PublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			PrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		},
	}, nil
}

// NewScheduler loads the scheduler process's configuration. Unlike the API
// server, the scheduler cannot do anything without push credentials, so a
// missing VAPID key pair is a startup error here.
func NewScheduler() (*Config, error) {
	const op = "config.NewScheduler"

	cfg, err := New()
	if err != nil {
		return nil, err
	}

	if cfg.VAPID.PublicKey == "" || cfg.VAPID.PrivateKey == "" {
		return nil, fmt.Errorf("%s: missing VAPID_PUBLIC_KEY or VAPID_PRIVATE_KEY", op)
	}

	if cfg.VAPID.Subject == "" {
		cfg.VAPID.Subject = "mailto:contact@freshcutx.example"
	}

	return cfg, nil
}

func newPostgresConfig() (*PostgresConfig, error) {
	const op = "config.newPostgresConfig"

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	return &PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}, nil
}

// DSN builds the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}
