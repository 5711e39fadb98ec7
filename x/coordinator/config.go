package coordinator

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the worker-facing TCP server configuration.
type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr"      yaml:"listen_addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	MaxFrameSize   int           `mapstructure:"max_frame_size"   yaml:"max_frame_size"`
	MaxConnections int           `mapstructure:"max_connections"  yaml:"max_connections"`

	// CommitHash identifies the build workers must match; requests
	// carrying a different hash are answered with version_mismatch when
	// no work is available. Empty disables the check.
	CommitHash string `mapstructure:"commit_hash" yaml:"commit_hash"`
}

// Validate checks the coordinator configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("coordinator.listen_addr is required")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("coordinator.max_frame_size must be positive, got %d", c.MaxFrameSize)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("coordinator.max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("coordinator.read_timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("coordinator.write_timeout must be positive")
	}
	return nil
}
