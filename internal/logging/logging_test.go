package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "files-manager", "debug", "json")

	log.WithField("file_id", "f1").Info("thumbnail written")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "files-manager", line["service"])
	assert.Equal(t, "f1", line["file_id"])
	assert.Equal(t, "thumbnail written", line["msg"])
	assert.Equal(t, "info", line["level"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "worker", "info", "text")

	log.Warn("queue empty")

	assert.Contains(t, buf.String(), "level=warning")
	assert.Contains(t, buf.String(), "service=worker")
}

func TestNewWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "svc", "verbose", "json")

	assert.Equal(t, logrus.InfoLevel, log.Logger.GetLevel())
	log.Debug("hidden")
	assert.Empty(t, buf.String())
}
