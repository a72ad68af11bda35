// Package config loads the server configuration from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StorageDynamoDB = "dynamodb"
	StorageBadger   = "badger"
)

// go-env splits tags on commas, so list defaults are applied after unmarshalling.
const defaultInviteRoles = "admin,researcher,user"

type Config struct {
	Port      int    `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	StorageDriver    string `env:"STORAGE_DRIVER,default=dynamodb"`
	BadgerPath       string `env:"BADGER_PATH,default=./data/badger"`
	AWSRegion        string `env:"AWS_REGION,default=us-east-1"`
	DynamoDBEndpoint string `env:"DYNAMODB_ENDPOINT"`
	S3BucketName     string `env:"S3_BUCKET_NAME"`
	S3PublicBaseURL  string `env:"S3_PUBLIC_BASE_URL"`

	JWTSecret   string `env:"JWT_SECRET,required=true"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	CORSOrigins string `env:"CORS_ORIGINS,default=http://localhost:3000"`

	InviteStrictEmail       bool   `env:"INVITE_STRICT_EMAIL,default=false"`
	InviteAllowedRoles      string `env:"INVITE_ALLOWED_ROLES"`
	InviteAllowUnregistered bool   `env:"INVITE_ALLOW_UNREGISTERED,default=true"`

	WSSendBuffer      int           `env:"WS_SEND_BUFFER,default=64"`
	WSWriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT,default=10s"`
	WSPongTimeout     time.Duration `env:"WS_PONG_TIMEOUT,default=60s"`
	WSMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES,default=65536"`

	HistoryDefaultLimit int `env:"HISTORY_DEFAULT_LIMIT,default=50"`
	HistoryMaxLimit     int `env:"HISTORY_MAX_LIMIT,default=200"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
}

// Load reads the optional env files, then unmarshals the process environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.InviteAllowedRoles == "" {
		cfg.InviteAllowedRoles = defaultInviteRoles
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDynamoDB, StorageBadger:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDynamoDB, StorageBadger, c.StorageDriver)
	}
	if c.StorageDriver == StorageBadger && c.BadgerPath == "" {
		return errors.New("BADGER_PATH is required when STORAGE_DRIVER=badger")
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.HistoryDefaultLimit <= 0 || c.HistoryMaxLimit < c.HistoryDefaultLimit {
		return fmt.Errorf("invalid history limits: default=%d max=%d", c.HistoryDefaultLimit, c.HistoryMaxLimit)
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

// AllowedInviteRoles splits INVITE_ALLOWED_ROLES on commas.
func (c *Config) AllowedInviteRoles() []string {
	return splitList(c.InviteAllowedRoles)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
