package logging

import (
	"bytes"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
)

func TestNew_WritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", &buf)

	logger.Info().Str("ticker", "AAPL").Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Str("ticker", "AAPL").Msg("kept")
	assert.Contains(t, buf.String(), `"ticker":"AAPL"`)
	assert.Contains(t, buf.String(), `"message":"kept"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, log.WarnLevel, parseLevel("warning"))
	assert.Equal(t, log.ErrorLevel, parseLevel("error"))
	assert.Equal(t, log.InfoLevel, parseLevel("bogus"))
}
