package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// JWTConfig signs the two kinds of session token the lab issues. Participant
// tokens carry an access code and live for a whole study visit; admin tokens
// carry the console username and expire sooner.
type JWTConfig struct {
	Secret           string
	ParticipantHours int
	AdminHours       int
}

const (
	defaultParticipantHours = 24
	defaultAdminHours       = 8
	minSecretLength         = 32
)

// NewJWTConfig reads JWT_SECRET, JWT_EXPIRATION_HOURS (participant sessions)
// and ADMIN_SESSION_HOURS.
func NewJWTConfig() (*JWTConfig, error) {
	cfg := &JWTConfig{Secret: os.Getenv("JWT_SECRET")}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}

	var err error
	if cfg.ParticipantHours, err = hoursFromEnv("JWT_EXPIRATION_HOURS", defaultParticipantHours); err != nil {
		return nil, err
	}
	if cfg.AdminHours, err = hoursFromEnv("ADMIN_SESSION_HOURS", defaultAdminHours); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParticipantTTL is how long a participant token and its cookie live
func (c *JWTConfig) ParticipantTTL() time.Duration {
	return time.Duration(c.ParticipantHours) * time.Hour
}

// AdminTTL is how long an admin token and its cookie live
func (c *JWTConfig) AdminTTL() time.Duration {
	return time.Duration(c.AdminHours) * time.Hour
}

func (c *JWTConfig) validate() error {
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters, got: %d", minSecretLength, len(c.Secret))
	}
	if c.ParticipantHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ParticipantHours)
	}
	if c.AdminHours < 1 {
		return fmt.Errorf("ADMIN_SESSION_HOURS must be at least 1 hour, got: %d", c.AdminHours)
	}
	return nil
}

func hoursFromEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return hours, nil
}
