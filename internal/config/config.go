// Package config provides Viper-based configuration loading for the imposter
// game server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP/WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// WriteTimeout is the per-message WebSocket write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PongTimeout is the duration of ping/pong silence after which a
	// connection is considered dead.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
	// SendBuffer is the per-connection outbound event buffer size.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GameConfig holds game-session policy settings.
type GameConfig struct {
	// MinPlayers is the minimum player count required to start a game.
	MinPlayers int `mapstructure:"min_players"`
	// GracePeriod is how long a disconnected non-admin player may reconnect
	// before being removed from the room.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// RoomCodeLength is the number of characters in a generated room code.
	RoomCodeLength int `mapstructure:"room_code_length"`
	// DistinctStarter forces the starter draw to exclude the imposter.
	// The default matches the classic rules: both draws are independent and
	// the imposter may also be the starter.
	DistinctStarter bool `mapstructure:"distinct_starter"`
}

// AuthConfig holds identity-verification settings.
type AuthConfig struct {
	// Enabled toggles token verification on the WebSocket upgrade. When
	// false any identity is accepted (local play).
	Enabled bool `mapstructure:"enabled"`
	// JWTSecret is the HS256 signing secret.
	JWTSecret string `mapstructure:"jwt_secret"`
	// TokenTTL is the issued-token lifetime.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// BcryptCost is the bcrypt work factor for stored credentials.
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// WordsConfig holds word-pair catalog settings.
type WordsConfig struct {
	// CatalogPath is the path to the YAML word-pair catalog file.
	CatalogPath string `mapstructure:"catalog_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Words   WordsConfig   `mapstructure:"words"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAuth(c.Auth); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWords(c.Words); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	// The writer derives its ping interval from the pong timeout, so
	// zero is as unusable as a negative value.
	if s.PongTimeout <= 0 {
		errs = append(errs, "server.pong_timeout must be positive")
	}
	if s.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.send_buffer must be >= 1, got %d", s.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.MinPlayers < 3 {
		errs = append(errs, fmt.Sprintf("game.min_players must be >= 3, got %d", g.MinPlayers))
	}
	if g.GracePeriod <= 0 {
		errs = append(errs, "game.grace_period must be positive")
	}
	if g.RoomCodeLength < 4 || g.RoomCodeLength > 12 {
		errs = append(errs, fmt.Sprintf("game.room_code_length must be 4-12, got %d", g.RoomCodeLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	var errs []string
	if a.Enabled && a.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret must not be empty when auth is enabled")
	}
	if a.Enabled && a.TokenTTL <= 0 {
		errs = append(errs, "auth.token_ttl must be positive when auth is enabled")
	}
	if a.BcryptCost < 4 || a.BcryptCost > 31 {
		errs = append(errs, fmt.Sprintf("auth.bcrypt_cost must be 4-31, got %d", a.BcryptCost))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWords(w WordsConfig) error {
	if w.CatalogPath == "" {
		return errors.New("words.catalog_path must not be empty")
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with IMPOSTER_ prefix
	v.SetEnvPrefix("IMPOSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.pong_timeout", "60s")
	v.SetDefault("server.send_buffer", 64)

	v.SetDefault("game.min_players", 3)
	v.SetDefault("game.grace_period", "30s")
	v.SetDefault("game.room_code_length", 6)
	v.SetDefault("game.distinct_starter", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("words.catalog_path", "content/words.yaml")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
