package migrate

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestReaderComputesBothDigestsWhileStreaming(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox "), 500)

	dr := newDigestReader(bytes.NewReader(payload))
	n, err := io.Copy(io.Discard, dr)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, int64(len(payload)), dr.BytesRead())

	wantLegacy := sha1.Sum(payload) //nolint:gosec
	wantTarget := sha256.Sum256(payload)

	assert.Equal(t, [legacyHashSize]byte(wantLegacy), dr.LegacySum())
	assert.Equal(t, [targetHashSize]byte(wantTarget), dr.TargetSum())
}

func TestDigestReaderEmptyInput(t *testing.T) {
	dr := newDigestReader(bytes.NewReader(nil))
	_, err := io.Copy(io.Discard, dr)
	require.NoError(t, err)

	assert.EqualValues(t, 0, dr.BytesRead())
	assert.Equal(t, sha256.Sum256(nil), [32]byte(dr.TargetSum()))
}
