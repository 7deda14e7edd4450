package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"redditcrawler/pkg/config"
)

func newBufferLogger(t *testing.T) (*bytes.Buffer, Logger) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	return &buf, l
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info console", &config.LoggingConfig{Level: "info", Format: "console"}, false},
		{"debug json", &config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "crawl.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	buf, l := newBufferLogger(t)

	l.WithField("subreddit", "ethtrader").InfoWithFields("Page persisted", map[string]interface{}{
		"records": 1000,
		"cursor":  int64(1514764800),
		"elapsed": 1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, `"message":"Page persisted"`)
	assert.Contains(t, out, `"app":"redditcrawler"`)
	assert.Contains(t, out, `"subreddit":"ethtrader"`)
	assert.Contains(t, out, `"records":1000`)
	assert.Contains(t, out, `"cursor":1514764800`)
	assert.Contains(t, out, `"elapsed":"1.5s"`)
}

func TestWithErrorNil(t *testing.T) {
	_, l := newBufferLogger(t)
	assert.Same(t, l, l.WithError(nil))
}

func TestWithErrorAndChaining(t *testing.T) {
	buf, l := newBufferLogger(t)

	l.WithField("a", "1").
		WithFields(map[string]interface{}{"b": 2}).
		WithError(errors.New("boom")).
		Error("failed")

	out := buf.String()
	assert.Contains(t, out, `"a":"1"`)
	assert.Contains(t, out, `"b":2`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestChildDoesNotLeakIntoParent(t *testing.T) {
	buf, l := newBufferLogger(t)

	_ = l.WithField("child", true)
	l.Info("parent")

	assert.False(t, strings.Contains(buf.String(), "child"))
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.NotNil(t, GetLogger())

	Debug("debug message")
	Info("info message")
	WithField("key", "value").Warn("with field")
	WithError(errors.New("x")).Error("with error")
}

func TestTestLoggerCapture(t *testing.T) {
	tl := NewTestLogger()

	tl.Info("started")
	child := tl.WithField("subreddit", "golang").WithError(errors.New("timeout"))
	child.WarnWithFields("retrying", map[string]interface{}{"attempt": 2})

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "retrying", msgs[1].Message)
	assert.Equal(t, "golang", msgs[1].Fields["subreddit"])
	assert.Equal(t, 2, msgs[1].Fields["attempt"])
	assert.EqualError(t, msgs[1].Error, "timeout")
	assert.True(t, tl.HasMessage("started"))
	assert.False(t, tl.HasError())
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	assert.Contains(t, tl.String(), "[WARN] retrying")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("k", "v").WithError(errors.New("e")).InfoWithFields("ignored", nil)
	assert.Nil(t, l.GetZerolog())
}
