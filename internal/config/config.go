// Package config reads the runtime configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Auth   AuthConfig   `yaml:"auth"`
	Mail   MailConfig   `yaml:"mail"`
	Limit  LimitConfig  `yaml:"limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    string `yaml:"port"     env:"PORT"     env-default:"8080"`
	BaseURL string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
}

// DBConfig holds the MySQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host"     env:"DBHOST" env-default:"localhost:3306"`
	User     string `yaml:"user"     env:"DBUSER" env-required:"true"`
	Password string `yaml:"password" env:"DBPWD"  env-required:"true"`
	Name     string `yaml:"name"     env:"DBNAME" env-default:"contacts"`
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"  env:"JWT_SECRET"  env-required:"true"`
	Issuer     string        `yaml:"issuer"      env:"JWT_ISSUER"  env-default:"contacts-backend"`
	AccessTTL  time.Duration `yaml:"access_ttl"  env:"ACCESS_TTL"  env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL" env-default:"168h"`
	EmailTTL   time.Duration `yaml:"email_ttl"   env:"EMAIL_TTL"   env-default:"24h"`
}

// MailConfig holds SMTP delivery settings for confirmation and password
// reset mails.
type MailConfig struct {
	Host     string `yaml:"host"     env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `yaml:"port"     env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user"     env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PWD"`
	From     string `yaml:"from"     env:"SMTP_FROM" env-default:"noreply@contacts.example.com"`
}

// LimitConfig holds the per-user rate limit applied to search and list
// endpoints.
type LimitConfig struct {
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"10"`
	Window   time.Duration `yaml:"window"   env:"RATE_LIMIT_WINDOW"   env-default:"1m"`
}

// Load reads the configuration from the environment and fails when a
// required value is missing.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading config from environment: %w", err)
	}
	return cfg, nil
}

// DSN builds the MySQL data source name. parseTime is required so that
// DATE and TIMESTAMP columns scan into time.Time.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", c.User, c.Password, c.Host, c.Name)
}
