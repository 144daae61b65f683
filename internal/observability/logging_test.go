package observability

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultLogConfig()},
		{name: "console stderr", cfg: LogConfig{Level: "debug", Format: "console", Output: "stderr"}},
		{name: "empty level means info", cfg: LogConfig{}},
		{name: "invalid level", cfg: LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.log")
	logger, err := NewLogger(LogConfig{Level: "info", Output: path})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestLogger_SetLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(LogConfig{Level: "info"})
	require.NoError(t, err)

	setter, ok := logger.(LevelSetter)
	require.True(t, ok)
	assert.Equal(t, "info", setter.Level())

	require.NoError(t, setter.SetLevel("DEBUG"))
	assert.Equal(t, "debug", setter.Level())

	child := logger.With(String("component", "test"))
	assert.Equal(t, "debug", child.(LevelSetter).Level())

	assert.Error(t, setter.SetLevel("verbose"))
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	ctx = ContextWithUserID(ctx, "user-1")

	logger.WithContext(ctx).Info("hello")
	logger.WithContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))
	assert.Empty(t, UserIDFromContext(ctx))
}

func TestGlobalLogger(t *testing.T) {
	assert.NotNil(t, GetGlobalLogger())

	logger := NopLogger()
	SetGlobalLogger(logger)
	t.Cleanup(func() { SetGlobalLogger(nil) })

	assert.Same(t, logger, GetGlobalLogger())
}

type recordingLogger struct {
	Logger
	warnings []string
}

func (l *recordingLogger) Warn(msg string, _ ...Field) { l.warnings = append(l.warnings, msg) }

func TestStdLog(t *testing.T) {
	t.Run("zap logger", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		std := StdLog(NewZapLogger(zap.New(core)))

		std.Printf("read error during body copy: %v", "unexpected EOF")

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "read error during body copy: unexpected EOF", entries[0].Message)
	})

	t.Run("other logger", func(t *testing.T) {
		logger := &recordingLogger{Logger: NopLogger()}
		StdLog(logger).Println("suppressed copy error")

		assert.Equal(t, []string{"suppressed copy error"}, logger.warnings)
	})
}
