package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

func TestTestLoggerCapturesLevelsAndFields(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationSplit)
	testLogger.Warn("warning message", ErrorCodeKey, "LOW_SUPPORT")
	testLogger.Error("error message", fmt.Errorf("boom"), FrameKey, "train.hex")

	require.NotEmpty(t, buffer.String())
	assert.True(t, testLogger.ContainsMessage("debug message"))
	assert.True(t, testLogger.ContainsMessage("error message"))
	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField("error", "boom"))
	assert.True(t, testLogger.ContainsField(FrameKey, "train.hex"))
}

func TestTestLoggerLevelFilter(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelWarn)

	testLogger.Info("hidden")
	testLogger.Warn("shown")

	assert.False(t, testLogger.ContainsMessage("hidden"))
	assert.True(t, testLogger.ContainsMessage("shown"))
	assert.False(t, testLogger.Enabled(context.Background(), LevelDebug))
	assert.True(t, testLogger.Enabled(context.Background(), LevelError))
}

func TestTestLoggerWith(t *testing.T) {
	base, _ := NewTestLogger(LevelInfo)
	child := base.With(ModelNameKey, "glm_v1", AlgorithmKey, "glm")
	child.Info("Training started")

	entries, err := base.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "glm_v1", entries[0][ModelNameKey])
	assert.Equal(t, "glm", entries[0][AlgorithmKey])
	assert.Equal(t, "INFO", entries[0]["level"])
}

func TestProviderSwap(t *testing.T) {
	p, captured := NewTestLoggerProvider(LevelDebug)
	SetProvider(p)
	defer SetProvider(newZerologProvider(&bytes.Buffer{}, "json", LevelInfo))

	GetLoggerWithName("engine").Info("connected", EngineURLKey, "http://localhost:54321")

	assert.True(t, captured.ContainsField(ComponentAttrKey, "engine"))
	assert.True(t, captured.ContainsField(EngineURLKey, "http://localhost:54321"))

	p.SetLevel(LevelError)
	GetLogger().Info("dropped")
	assert.False(t, captured.ContainsMessage("dropped"))
}

func TestZerologBackendJSON(t *testing.T) {
	var buf bytes.Buffer
	p := newZerologProvider(&buf, "json", LevelDebug)
	logger := p.GetLoggerWithName("preprocessing").With(ColumnKey, "Elevation")

	logger.Info("buckets computed", BucketsKey, 7)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "buckets computed", entry["message"])
	assert.Equal(t, "preprocessing", entry[ComponentAttrKey])
	assert.Equal(t, "Elevation", entry[ColumnKey])
	assert.Equal(t, 7.0, entry[BucketsKey])
	assert.Equal(t, "info", entry["level"])
}

func TestZerologBackendErrorStack(t *testing.T) {
	var buf bytes.Buffer
	p := newZerologProvider(&buf, "json", LevelDebug)

	err := errors.NewRemoteError("GET", "/3/Frames/x", 404, "not found")
	p.GetLogger().Error("lookup failed", err)

	out := buf.String()
	assert.Contains(t, out, "lookup failed")
	assert.Contains(t, out, "status 404")
	assert.Contains(t, out, `"stack"`)
}

func TestZerologBackendLevel(t *testing.T) {
	var buf bytes.Buffer
	p := newZerologProvider(&buf, "json", LevelWarn)
	logger := p.GetLogger()

	logger.Info("quiet")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupLogger("info", "json", &buf))
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewConvergenceWarning("glm", "glm_v1", "Reached max iterations"))

	out := buf.String()
	assert.Contains(t, out, "glm_v1")
	assert.Contains(t, out, `"component":"warnings"`)
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				testLogger.With(ColumnKey, fmt.Sprintf("col_%d", id)).Info("bucketed")
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 160)
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e[ColumnKey].(string), "col_"))
	}
}
