package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "service:\n  name: host\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host", cfg.Service.Name)
	assert.Equal(t, ":8088", cfg.HTTP.Address)
	assert.Equal(t, ":50053", cfg.GRPC.Address)
	assert.Equal(t, "balanced", cfg.Session.PacingMode)
	assert.Equal(t, 60*time.Millisecond, cfg.Session.AudioMaxAge)
	assert.Equal(t, 2, cfg.Session.VideoQueueCapacity)
	assert.Equal(t, 4, cfg.Session.AudioQueueCapacity)
	assert.Equal(t, 3*time.Minute, cfg.Capture.IdleGrace)
	assert.Equal(t, "synthetic", cfg.Capture.Apps["desktop"].Source)
	assert.Equal(t, "input", cfg.Input.Label)
	assert.Equal(t, time.Second, cfg.Input.MouseIdle)
	assert.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `
session:
  pacing_mode: latency
  balanced_max_age_frames: 5
  keyframe_request_interval: 500ms
capture:
  idle_grace: 30s
  apps:
    game:
      source: rtmp
      url: rtmp://localhost/live/game
webrtc:
  udp_port_min: 40000
  udp_port_max: 40100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "latency", cfg.Session.PacingMode)
	assert.Equal(t, 5, cfg.Session.BalancedMaxAgeFrames)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.KeyframeRequestInterval)
	assert.Equal(t, 30*time.Second, cfg.Capture.IdleGrace)

	game := cfg.Capture.Apps["game"]
	assert.Equal(t, "rtmp", game.Source)
	assert.Equal(t, 2*time.Second, game.KeyframeInterval)
	assert.Equal(t, 5*time.Second, game.DialTimeout)
	assert.Equal(t, uint16(40000), cfg.WebRTC.UDPPortMin)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUTH_SECRET", "s3cret")
	path := writeConfig(t, "auth:\n  enabled: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"pacing mode":      "session:\n  pacing_mode: fastest\n",
		"rtmp without url": "capture:\n  apps:\n    game:\n      source: rtmp\n",
		"unknown source":   "capture:\n  apps:\n    game:\n      source: webcam\n",
		"auth secret":      "auth:\n  enabled: true\n",
		"port range":       "webrtc:\n  udp_port_min: 50000\n  udp_port_max: 40000\n",
		"log format":       "logging:\n  format: xml\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
