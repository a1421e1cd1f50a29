package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"uploading", "processing", "ready", "failed"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}

	_, err := ParseStatus("queued")
	assert.Error(t, err)
	_, err = ParseStatus("")
	assert.Error(t, err)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusUploading, StatusReady, true},
		{StatusUploading, StatusProcessing, true},
		{StatusUploading, StatusFailed, true},
		{StatusProcessing, StatusReady, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusUploading, false},
		{StatusReady, StatusProcessing, false},
		{StatusReady, StatusFailed, false},
		{StatusFailed, StatusReady, false},
		{StatusFailed, StatusUploading, false},
		{StatusUploading, StatusUploading, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
		err := ValidateTransition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	}
}

func TestStatusStreamable(t *testing.T) {
	assert.True(t, StatusReady.Streamable())
	assert.False(t, StatusUploading.Streamable())
	assert.False(t, StatusProcessing.Streamable())
	assert.False(t, StatusFailed.Streamable())
}
