package migrate

import "fmt"

// minMultipartChunkSize is the provider floor named in §9's open-question
// resolution: re-implementers must preserve this minimum.
const minMultipartChunkSize = 5 * 1024 * 1024

// Config is the engine's complete set of tunables, per §6's option table.
// Loading it from flags/env/files is external; this struct and its
// defaulting/validation logic are in scope, mirroring the teacher's
// StageXxxCfg constructor pattern and the pack's workerpool.Config
// zero-value-replaced-by-default idiom.
type Config struct {
	Bucket string

	ReceiverThreads   int
	StorerThreads     int
	CommitterThreads  int
	ReceiverQueue     int
	StorerQueue       int
	CommitterQueue    int
	SpillThreshold    int64
	MultipartChunkSize int64
	CommitBatchSize   int
	MonitorInterval   int // seconds
}

// DefaultConfig returns a Config with every option set to its documented
// default, ready for field-by-field override.
func DefaultConfig() Config {
	return Config{
		ReceiverThreads:    4,
		StorerThreads:      4,
		CommitterThreads:   2,
		ReceiverQueue:      256,
		StorerQueue:        256,
		CommitterQueue:     256,
		SpillThreshold:     4 << 20,  // 4 MiB
		MultipartChunkSize: 20 << 20, // 20 MiB, per §9's open question
		CommitBatchSize:    500,
		MonitorInterval:    5,
	}
}

// FillDefaults replaces every zero-valued field with its documented default,
// in place, matching the pack's workerpool.Config.New pattern of only
// overriding unset fields.
func (c *Config) FillDefaults() {
	d := DefaultConfig()
	if c.ReceiverThreads == 0 {
		c.ReceiverThreads = d.ReceiverThreads
	}
	if c.StorerThreads == 0 {
		c.StorerThreads = d.StorerThreads
	}
	if c.CommitterThreads == 0 {
		c.CommitterThreads = d.CommitterThreads
	}
	if c.ReceiverQueue == 0 {
		c.ReceiverQueue = d.ReceiverQueue
	}
	if c.StorerQueue == 0 {
		c.StorerQueue = d.StorerQueue
	}
	if c.CommitterQueue == 0 {
		c.CommitterQueue = d.CommitterQueue
	}
	if c.SpillThreshold == 0 {
		c.SpillThreshold = d.SpillThreshold
	}
	if c.MultipartChunkSize == 0 {
		c.MultipartChunkSize = d.MultipartChunkSize
	}
	if c.CommitBatchSize == 0 {
		c.CommitBatchSize = d.CommitBatchSize
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = d.MonitorInterval
	}
}

// Validate rejects configurations that violate a hard invariant. Unlike
// FillDefaults, which silently substitutes a default for an unset (zero)
// field, Validate refuses to silently coerce an explicitly-set-but-illegal
// value — per §9's instruction to preserve the 5 MiB multipart floor rather
// than clamp up quietly.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("migrate: config: bucket is required")
	}
	if c.MultipartChunkSize < minMultipartChunkSize {
		return fmt.Errorf("migrate: config: multipart chunk size %d is below the provider minimum %d", c.MultipartChunkSize, minMultipartChunkSize)
	}
	if c.ReceiverThreads < 1 || c.StorerThreads < 1 || c.CommitterThreads < 1 {
		return fmt.Errorf("migrate: config: pool thread counts must be >= 1")
	}
	if c.CommitBatchSize < 1 {
		return fmt.Errorf("migrate: config: commit batch size must be >= 1")
	}
	if c.MonitorInterval < 1 {
		return fmt.Errorf("migrate: config: monitor interval must be >= 1 second")
	}
	return nil
}
