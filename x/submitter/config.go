package submitter

import (
	"fmt"
	"time"
)

// Config controls the submission loop.
type Config struct {
	// Interval is the base delay between submission ticks.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Jitter adds up to this much random delay to each tick so multiple
	// environments sharing an RPC endpoint do not fire in lockstep. Zero
	// disables it.
	Jitter time.Duration `mapstructure:"jitter" yaml:"jitter"`

	// MaxBatchesPerTx caps how many batches one verifyBatches call may
	// carry, keeping calldata under the settlement layer's limits.
	MaxBatchesPerTx int `mapstructure:"max_batches_per_tx" yaml:"max_batches_per_tx"`
}

// Validate checks the submitter configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("submitter.interval must be positive")
	}
	if c.Jitter < 0 {
		return fmt.Errorf("submitter.jitter must not be negative")
	}
	if c.MaxBatchesPerTx <= 0 {
		return fmt.Errorf("submitter.max_batches_per_tx must be positive, got %d", c.MaxBatchesPerTx)
	}
	return nil
}
