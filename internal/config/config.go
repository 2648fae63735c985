package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	Tokens     `yaml:"tokens"`
	RabbitMQ   `yaml:"rabbitmq"`
	Postgres   `yaml:"postgres"`
	HTTPServer `yaml:"http_server"`
	Sweeper    `yaml:"sweeper"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	BaseURL     string        `yaml:"base_url" env-default:"http://localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Tokens struct {
	BearerTokenTTL       time.Duration `yaml:"bearer_token_ttl" env-default:"1h"`
	BearerTokenSecret    string        `yaml:"bearer_token_secret" env:"AUTH_TOKEN_SIGNING_KEY" env-required:"true"`
	Issuer               string        `yaml:"issuer"`
	Audience             string        `yaml:"audience"`
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl" env-default:"24h"`
}

type Sweeper struct {
	Interval time.Duration `yaml:"interval" env-default:"1h"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-required:"true"`
}

const minSecretLen = 32

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	if err := cfg.validate(); err != nil {
		panic("Invalid config: " + err.Error())
	}

	return &cfg
}

// validate enforces the startup invariants that cleanenv tags cannot express.
// A weak signing secret must stop the process, never degrade to unsigned or
// weakly signed tokens.
func (c *Config) validate() error {
	if len(c.Tokens.BearerTokenSecret) < minSecretLen {
		return fmt.Errorf("bearer_token_secret must be at least %d bytes", minSecretLen)
	}

	if c.Tokens.BearerTokenTTL <= 0 {
		return fmt.Errorf("bearer_token_ttl must be positive")
	}

	if c.Tokens.VerificationTokenTTL <= 0 {
		return fmt.Errorf("verification_token_ttl must be positive")
	}

	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper interval must be positive")
	}

	return nil
}
