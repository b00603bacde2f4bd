package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetLevel("WARN")
	SetOutput(&buf, "text")
	t.Cleanup(func() {
		SetLevel("INFO")
		SetOutput(os.Stdout, "text")
	})

	Info("hidden %d", 1)
	Warn("visible %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "visible 2")
	assert.Contains(t, out, "[WARN]")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetLevel("DEBUG")
	SetOutput(&buf, "json")
	t.Cleanup(func() {
		SetLevel("INFO")
		SetOutput(os.Stdout, "text")
	})

	Debug("connection from %s", "127.0.0.1:1234")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "connection from 127.0.0.1:1234", entry["message"])
}

func TestConfigureFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsyncd.log")
	require.NoError(t, Configure("info", "text", path))
	t.Cleanup(func() {
		_ = Configure("INFO", "text", "stdout")
	})

	Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Configure("INFO", "xml", "stdout"))
	assert.Error(t, Configure("LOUD", "text", "stdout"))
}
