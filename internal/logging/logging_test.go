package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logger.Info().Str("clip", "a.mp4").Msg("analyzed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "a.mp4", entry["clip"])
	assert.Equal(t, "analyzed", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewLoggerMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	logger := NewLogger(&a, &b)
	logger.Warn().Msg("both")

	assert.Contains(t, a.String(), "both")
	assert.Contains(t, b.String(), "both")
}
