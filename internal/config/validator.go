package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a loaded configuration for values the engine would reject
// later anyway.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateLevel(cfg.Logging.Level); err != nil {
		return err
	}
	if cfg.Consistency.ToleranceMs < 0 {
		return fmt.Errorf("consistency tolerance cannot be negative")
	}
	if err := v.ValidateAllowList("categories", cfg.Categories); err != nil {
		return err
	}
	return v.ValidateAllowList("tags", cfg.Tags)
}

// ValidateLevel validates a log level string
func (v *Validator) ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", level)
	}
}

// ValidateAllowList rejects blank entries in an allow-list
func (v *Validator) ValidateAllowList(name string, values []string) error {
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s allow-list contains a blank entry", name)
		}
	}
	return nil
}
