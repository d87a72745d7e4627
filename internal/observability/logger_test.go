// File: internal/observability/logger_test.go
package observability

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/webpilot-ai/webpilot/internal/config"
)

// syncBuffer is a minimal WriteSyncer capturing console output for assertions.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInitializeAndLog(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "webpilot-test",
	}, zapcore.AddSync(buf))

	logger := GetLogger()
	require.NotNil(t, logger)

	logger.Info("hello from test")
	assert.Contains(t, buf.String(), "hello from test")
	assert.Contains(t, buf.String(), "webpilot-test")
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	first := &syncBuffer{}
	second := &syncBuffer{}

	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, zapcore.AddSync(first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "b"}, zapcore.AddSync(second))

	GetLogger().Info("routed once")
	assert.Contains(t, first.String(), "routed once")
	assert.Empty(t, second.String())
}

func TestGetLoggerBeforeInit(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	// Must never return nil, even uninitialized.
	require.NotNil(t, GetLogger())
}
