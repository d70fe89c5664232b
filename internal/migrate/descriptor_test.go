package migrate

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegacyHashHexRoundTrips(t *testing.T) {
	data := []byte("hello world")
	want := sha1Hex(data)

	parsed, err := ParseLegacyHashHex(want)
	require.NoError(t, err)
	assert.Equal(t, want, NewBlobDescriptor(parsed, 1, int64(len(data)), "").LegacyHashHex)
}

func TestParseLegacyHashHexRejectsMalformedHex(t *testing.T) {
	_, err := ParseLegacyHashHex("not-hex-at-all")
	assert.Error(t, err)
}

func TestParseLegacyHashHexRejectsWrongLength(t *testing.T) {
	_, err := ParseLegacyHashHex("aabb") // valid hex, wrong length
	assert.Error(t, err)
}

func TestObjectKeyRequiresTargetHashFirst(t *testing.T) {
	d := NewBlobDescriptor([20]byte{}, 1, 0, "")
	_, err := d.ObjectKey()
	assert.Error(t, err)

	hash := [32]byte{0xAB}
	d.SetTargetHash(hash)
	key, err := d.ObjectKey()
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(hash[:]), key)
}

func TestBufferCloseIsIdempotentAndRemovesSpillFile(t *testing.T) {
	var b Buffer
	assert.NoError(t, b.Close())
	assert.Equal(t, BufferEmpty, b.Kind)

	f, err := os.CreateTemp(t.TempDir(), "spill-*")
	require.NoError(t, err)
	name := f.Name()

	spilled := SpilledBuffer(f)
	assert.NoError(t, spilled.Close())
	_, statErr := os.Stat(name)
	assert.True(t, os.IsNotExist(statErr), "spill file must be removed by Close")

	assert.NoError(t, spilled.Close())
	assert.Equal(t, BufferEmpty, spilled.Kind)
}
