package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFillDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	cfg := Config{Bucket: "b", ReceiverThreads: 9}
	cfg.FillDefaults()

	assert.Equal(t, 9, cfg.ReceiverThreads)
	assert.Equal(t, DefaultConfig().StorerThreads, cfg.StorerThreads)
	assert.Equal(t, DefaultConfig().MultipartChunkSize, cfg.MultipartChunkSize)
}

func TestConfigValidateRejectsSubMinimumChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bucket = "b"
	cfg.MultipartChunkSize = minMultipartChunkSize - 1

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfigValidateRequiresBucket(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bucket = "b"
	assert.NoError(t, cfg.Validate())
}
