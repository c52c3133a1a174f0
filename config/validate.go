package config

import (
	"fmt"
	"strings"

	"escrowd/crypto"
	"escrowd/native/fees"
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if err := fees.ValidateRate(c.Escrow.FeeBps); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	if _, err := c.OwnerAddress(); err != nil {
		return fmt.Errorf("escrow: owner: %w", err)
	}
	if _, err := c.FeeRecipientAddress(); err != nil {
		return fmt.Errorf("escrow: fee recipient: %w", err)
	}
	if c.Escrow.TransferTimeout <= 0 {
		return fmt.Errorf("escrow: transfer timeout must be positive")
	}
	switch c.Database {
	case "leveldb":
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("data dir required for leveldb")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database %q", c.Database)
	}
	if strings.TrimSpace(c.API.JWTSecret) == "" {
		return fmt.Errorf("api: jwt secret required")
	}
	if c.API.RateLimitPerSec <= 0 || c.API.RateLimitBurst <= 0 {
		return fmt.Errorf("api: rate limit and burst must be positive")
	}
	switch c.Journal.Driver {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return fmt.Errorf("journal: dsn required for driver %s", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal: unsupported driver %q", c.Journal.Driver)
	}
	if c.Webhooks.URL != "" {
		if strings.TrimSpace(c.Webhooks.Secret) == "" {
			return fmt.Errorf("webhooks: secret required")
		}
		if c.Webhooks.MaxAttempts <= 0 {
			return fmt.Errorf("webhooks: max attempts must be positive")
		}
	}
	if c.Notifier.QueueCapacity <= 0 {
		return fmt.Errorf("notifier: queue capacity must be positive")
	}
	return nil
}

// OwnerAddress parses the configured owner.
func (c *Config) OwnerAddress() (crypto.Address, error) {
	addr, err := crypto.ParseAddress(c.Escrow.Owner)
	if err != nil {
		return crypto.ZeroAddress, err
	}
	if addr.IsZero() {
		return crypto.ZeroAddress, fmt.Errorf("zero address")
	}
	return addr, nil
}

// FeeRecipientAddress parses the configured fee recipient, falling back to the
// owner.
func (c *Config) FeeRecipientAddress() (crypto.Address, error) {
	if strings.TrimSpace(c.Escrow.FeeRecipient) == "" {
		return c.OwnerAddress()
	}
	return crypto.ParseAddress(c.Escrow.FeeRecipient)
}
