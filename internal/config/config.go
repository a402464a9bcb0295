package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/costaparas/shell-script-api/internal/request"
)

var (
	ErrInvalidFraming  = errors.New("framing must be one of: line, exact")
	ErrInvalidPort     = errors.New("port must be between 0 and 65535")
	ErrInvalidDuration = errors.New("durations must not be negative")
)

// Config holds all configuration for the shell-api service
type Config struct {
	// Server configuration
	Host string
	Port int

	// Request framing
	Framing request.Framing

	// Connection configuration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.ReadTimeout < 0 || c.ShutdownGracePeriod < 0 {
		return ErrInvalidDuration
	}
	if c.Framing != request.FramingLine && c.Framing != request.FramingExact {
		return ErrInvalidFraming
	}
	return nil
}
